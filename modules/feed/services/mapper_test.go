package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
)

func TestMapperNativeAndMapped(t *testing.T) {
	m := NewCourseMapper(
		[]string{"CSCI1000", "csci2000"},
		[]domain.CourseMapping{
			{Course: "csci1000", Section: "2", MappedCourse: "CSCI6000", MappedSection: "02"},
		},
		nil,
	)

	require.True(t, m.IsNative("csci1000"))
	require.True(t, m.IsNative("csci2000"))
	require.False(t, m.IsNative("csci9999"))

	require.True(t, m.HasMapping("csci1000"))
	target, ok := m.ResolveMapped("csci1000", "2")
	require.True(t, ok)
	require.Equal(t, domain.MappingTarget{Course: "csci6000", Section: "02"}, target)

	_, ok = m.ResolveMapped("csci1000", "3")
	require.False(t, ok)
	_, ok = m.ResolveMapped("csci2000", "2")
	require.False(t, ok)
}

func TestResolveCopiesPrefersExactSection(t *testing.T) {
	m := NewCourseMapper(nil, nil, []domain.CopyMapping{
		{Course: "csci1000", Section: "all", TargetCourse: "csci1100", TargetSection: "all"},
		{Course: "csci1000", Section: "3", TargetCourse: "csci1200", TargetSection: "9"},
	})

	// Exact entry wins over the wildcard.
	targets := m.ResolveCopies("csci1000", "3")
	require.Equal(t, []domain.MappingTarget{{Course: "csci1200", Section: "9"}}, targets)

	// Wildcard keeps the row's own section.
	targets = m.ResolveCopies("csci1000", "7")
	require.Equal(t, []domain.MappingTarget{{Course: "csci1100", Section: "7"}}, targets)

	require.Nil(t, m.ResolveCopies("csci2000", "1"))
}

func TestCopymapPathForTerm(t *testing.T) {
	require.Equal(t, "/var/local/crn_copymap_f24.csv", CopymapPathForTerm("/var/local/crn_copymap.csv", "f24"))
	require.Equal(t, "copymap_s25", CopymapPathForTerm("copymap", "s25"))
}

func TestLoadCopymap(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "crn_copymap.csv")
	perTerm := filepath.Join(dir, "crn_copymap_f24.csv")
	require.NoError(t, os.WriteFile(perTerm, []byte("csci1000,1,csci1100,4\ncsci1000,all,csci1200,all\n"), 0o644))

	copies, err := LoadCopymap(base, "f24")
	require.NoError(t, err)
	require.Equal(t, []domain.CopyMapping{
		{Course: "csci1000", Section: "1", TargetCourse: "csci1100", TargetSection: "4"},
		{Course: "csci1000", Section: "all", TargetCourse: "csci1200", TargetSection: "all"},
	}, copies)
}

func TestLoadCopymapMissingFile(t *testing.T) {
	copies, err := LoadCopymap(filepath.Join(t.TempDir(), "nope.csv"), "f24")
	require.NoError(t, err)
	require.Nil(t, copies)
}
