package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/modules/feed/services"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

var (
	termRe     = regexp.MustCompile(`^[a-z]\d{2}$`)
	courseRe   = regexp.MustCompile(`^[\w\-]+$`)
	sectionsRe = regexp.MustCompile(`^\d+(?:[,\-]\d+)*$|^all$`)
)

func newCopymapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copymap <term> <course-a> <sections> <course-b> [sections]",
		Short: "Append duplicate-enrollment mappings to the term's copymap file",
		Long: `Create a mapping of course sections whose enrollment is duplicated
into another course.  Useful when a professor wants a course roster,
by section, mirrored into a second course that receives no enrollment
data of its own.  Sections are comma lists with ranges ("1-5,7") or
the "all" wildcard; section lists must map 1:1.`,
		Args: cobra.RangeArgs(4, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopymap(args)
		},
	}
	return cmd
}

func runCopymap(args []string) error {
	cfg, err := configuration.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	if cfg.Feed.CopymapFile == "" {
		return withCode(exitUsage, fmt.Errorf("CRN_COPYMAP_FILE is not configured"))
	}

	term, sourceCourse, sourceArg, destCourse := args[0], args[1], args[2], args[3]
	destArg := ""
	if len(args) == 5 {
		destArg = args[4]
	}

	switch {
	case !termRe.MatchString(term):
		return withCode(exitUsage, fmt.Errorf("bad term code %q", term))
	case !courseRe.MatchString(sourceCourse) || !courseRe.MatchString(destCourse):
		return withCode(exitUsage, fmt.Errorf("course codes must be alphanumeric"))
	case !sectionsRe.MatchString(sourceArg):
		return withCode(exitUsage, fmt.Errorf("bad section list %q", sourceArg))
	case destArg != "" && !sectionsRe.MatchString(destArg):
		return withCode(exitUsage, fmt.Errorf("bad section list %q", destArg))
	case sourceArg != "all" && (destArg == "" || destArg == "all"):
		return withCode(exitUsage, fmt.Errorf("destination sections are required unless source sections is \"all\""))
	case sourceArg == "all" && destArg != "" && destArg != "all":
		return withCode(exitUsage, fmt.Errorf("destination sections must be omitted or \"all\" when source sections is \"all\""))
	}

	sourceSections := expandSections(sourceArg)
	destSections := sourceSections
	if sourceArg != "all" {
		destSections = expandSections(destArg)
	}
	if len(sourceSections) != len(destSections) {
		return withCode(exitUsage, fmt.Errorf("one course has more sections than the other; sections need to map 1:1"))
	}

	path := services.CopymapPathForTerm(cfg.Feed.CopymapFile, term)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return withCode(exitValidation, err)
	}

	w := csv.NewWriter(f)
	for i := range sourceSections {
		row := []string{sourceCourse, sourceSections[i], destCourse, destSections[i]}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return withCode(exitValidation, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return withCode(exitValidation, err)
	}
	return withCode(exitValidation, f.Close())
}

// expandSections turns "1-3,5" into ["1" "2" "3" "5"].  "all" stays as
// the single wildcard entry.
func expandSections(arg string) []string {
	if arg == "all" {
		return []string{"all"}
	}
	var out []string
	for _, part := range strings.Split(arg, ",") {
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			out = append(out, part)
			continue
		}
		start, err1 := strconv.Atoi(lo)
		end, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil {
			out = append(out, part)
			continue
		}
		for n := start; n <= end; n++ {
			out = append(out, strconv.Itoa(n))
		}
	}
	return out
}
