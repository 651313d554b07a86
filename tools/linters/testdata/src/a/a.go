package a

import "os"

// Outside test files the environment may be changed.
func Prepare() {
	os.Setenv("DB_TYPE", "sqlcipher")
}
