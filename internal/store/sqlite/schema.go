package sqlite

import "database/sql"

// dsnOptions enables WAL so the engine can read while an importer writes.
const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			t      INTEGER NOT NULL,
			o      REAL    NOT NULL,
			h      REAL    NOT NULL,
			l      REAL    NOT NULL,
			c      REAL    NOT NULL,
			v      REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, t)
		);
	`)
	return err
}
