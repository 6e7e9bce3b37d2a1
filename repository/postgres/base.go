package postgres

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/omni/gmp-mock-api/db"
)

// basePostgresRepo is the underlying type of every repository, statements are
// built with psql so that postgres placeholders are used everywhere.
type basePostgresRepo struct {
	table string
	db    *db.DB
	psql  sq.StatementBuilderType
}

func newBasePostgresRepo(table string, db *db.DB) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}
