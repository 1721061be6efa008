package domain

import "database/sql"

// Paper is the slice of the papers table the analysis pipeline reads. The
// paper CRUD surface itself lives in another service; workers only fetch the
// text handed to providers.
type Paper struct {
	PaperID  string         `db:"paper_id"`
	Title    string         `db:"title"`
	Abstract sql.NullString `db:"abstract"`
	Content  sql.NullString `db:"content_text"`
}
