// repository/student/repo.go
package student

import (
	"context"
	"database/sql"

	"github.com/wmuth/SoundGoodDB/model"
)

// Repo is a read-only view over the student reference tables. The rental
// core only ever looks students up; it never writes them.
type Repo interface {
	ByID(ctx context.Context, id int32) (*model.Student, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) ByID(ctx context.Context, id int32) (*model.Student, error) {
	const q = `
		SELECT s.student_id, s.person_id, p.first_name, p.last_name
		FROM students s
		JOIN persons p ON p.person_id = s.person_id
		WHERE s.student_id = $1`
	st := &model.Student{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(&st.ID, &st.PersonID, &st.FirstName, &st.LastName)
	if err != nil {
		return nil, err
	}
	return st, nil
}
