package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":        {nil, false},
		"gorm":       {gorm.ErrDuplicatedKey, true},
		"postgres":   {fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		"postgresFK": {&pgconn.PgError{Code: "23503"}, false},
		"mysql":      {&mysql.MySQLError{Number: 1062}, true},
		"sqlite":     {errors.New("UNIQUE constraint failed: users.email"), true},
		"sqliteFK":   {errors.New("FOREIGN KEY constraint failed"), false},
		"other":      {errors.New("boom"), false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, IsUniqueViolation(tc.err))
		})
	}
}
