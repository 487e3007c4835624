package inmemdb

import (
	"sync"

	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/student"
)

// DB is an in-memory database used by tests and local dev.
type DB struct {
	records  *recordTable
	students *studentTable
}

type recordTable struct {
	mutex sync.RWMutex
	table map[string]*progression.Record // by ID
}

type studentTable struct {
	mutex sync.RWMutex
	table map[string]*student.Student // by ID
}

func Open() (*DB, error) {
	return &DB{
		records:  &recordTable{table: make(map[string]*progression.Record)},
		students: &studentTable{table: make(map[string]*student.Student)},
	}, nil
}
