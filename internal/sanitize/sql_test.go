package sanitize

import "testing"

func TestSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"string literal",
			"SELECT * FROM users WHERE email = 'secret@link.com'",
			"SELECT * FROM users WHERE email = ?",
		},
		{
			"double-quoted literal",
			`INSERT INTO t (name) VALUES ("Alice")`,
			"INSERT INTO t (name) VALUES (?)",
		},
		{
			"numeric literals",
			"SELECT * FROM orders WHERE id = 42 AND total > 19.99",
			"SELECT * FROM orders WHERE id = ? AND total > ?",
		},
		{
			"negative number",
			"UPDATE accounts SET balance = -50 WHERE id = 7",
			"UPDATE accounts SET balance = ? WHERE id = ?",
		},
		{
			"boolean literals",
			"SELECT * FROM flags WHERE active = TRUE AND hidden = false",
			"SELECT * FROM flags WHERE active = ? AND hidden = ?",
		},
		{
			"null literal",
			"SELECT * FROM users WHERE deleted_at IS NULL",
			"SELECT * FROM users WHERE deleted_at IS ?",
		},
		{
			"literal containing a number",
			"SELECT * FROM t WHERE code = 'abc123'",
			"SELECT * FROM t WHERE code = ?",
		},
		{
			"digits inside identifiers survive",
			"SELECT col1 FROM table2 WHERE col1 = 5",
			"SELECT col1 FROM table2 WHERE col1 = ?",
		},
		{
			"no literals",
			"SELECT id, name FROM users",
			"SELECT id, name FROM users",
		},
		{"empty", "", ""},
		{"blank", "   ", "   "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SQL(tc.in); got != tc.want {
				t.Errorf("SQL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSQLIdempotent(t *testing.T) {
	statements := []string{
		"SELECT * FROM users WHERE email = 'secret@link.com'",
		"SELECT * FROM orders WHERE id = 42 AND note = 'paid: true, due: 12.50'",
		"INSERT INTO t VALUES (1, 'x', NULL, false)",
		"SELECT id FROM t",
	}
	for _, s := range statements {
		once := SQL(s)
		if twice := SQL(once); twice != once {
			t.Errorf("not idempotent: SQL(%q) = %q, but SQL again = %q", s, once, twice)
		}
	}
}
