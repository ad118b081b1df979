package postgres

// TruncateForTest empties the memories table. It lives in the package under
// test so the _test package can reset state between cases without exposing a
// production API for it.
func (s *Store) TruncateForTest() error {
	_, err := s.db.Exec("TRUNCATE TABLE memories")
	return err
}
