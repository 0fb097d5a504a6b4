package persistence

// Statements the feed issues against the master schema.  Table locks
// are EXCLUSIVE so concurrent administrative tools serialize against a
// running feed one course-transaction at a time.
const (
	lockUsersSQL       = `LOCK TABLE users IN EXCLUSIVE MODE`
	lockSectionsSQL    = `LOCK TABLE courses_registration_sections IN EXCLUSIVE MODE`
	lockEnrollmentsSQL = `LOCK TABLE courses_users IN EXCLUSIVE MODE`

	selectCoursesSQL = `
		SELECT course
		FROM courses
		WHERE term = $1 AND status = 1`

	selectMappedCoursesSQL = `
		SELECT course, registration_section, mapped_course, mapped_section
		FROM mapped_courses
		WHERE term = $1`

	countEnrollmentSQL = `
		SELECT COUNT(*)
		FROM courses_users
		WHERE term = $1
		  AND course = $2
		  AND user_group = $3
		  AND registration_section IS NOT NULL`

	// Preferred name is written only while the user has never touched it
	// and no instructor has either; email never regresses to blank.
	upsertUserSQL = `
		INSERT INTO users
			(user_id, user_numeric_id, user_givenname, user_preferred_givenname, user_familyname, user_email)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			user_numeric_id = EXCLUDED.user_numeric_id,
			user_givenname  = EXCLUDED.user_givenname,
			user_familyname = EXCLUDED.user_familyname,
			user_preferred_givenname = CASE
				WHEN users.user_updated = FALSE
				 AND users.instructor_updated = FALSE
				 AND COALESCE(users.user_preferred_givenname, '') = ''
				THEN EXCLUDED.user_preferred_givenname
				ELSE users.user_preferred_givenname
			END,
			user_email = CASE
				WHEN COALESCE(EXCLUDED.user_email, '') <> '' THEN EXCLUDED.user_email
				ELSE users.user_email
			END`

	// Sections are append-only; once created the feed never rewrites them.
	insertSectionSQL = `
		INSERT INTO courses_registration_sections (term, course, registration_section_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	// Manual registrations and non-student rows are off limits on update.
	upsertEnrollmentSQL = `
		INSERT INTO courses_users
			(term, course, user_id, user_group, registration_section, registration_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (term, course, user_id) DO UPDATE SET
			registration_section = EXCLUDED.registration_section,
			registration_type    = EXCLUDED.registration_type
		WHERE courses_users.user_group = $4
		  AND courses_users.manual_registration = FALSE`

	createFeedRosterSQL = `
		CREATE TEMPORARY TABLE feed_roster (user_id VARCHAR NOT NULL) ON COMMIT DROP`

	// Students the feed no longer carries are unregistered, not deleted.
	dropMissingEnrollmentsSQL = `
		UPDATE courses_users
		SET registration_section = NULL
		WHERE term = $1
		  AND course = $2
		  AND user_group = $3
		  AND manual_registration = FALSE
		  AND user_id NOT IN (SELECT user_id FROM feed_roster)`
)
