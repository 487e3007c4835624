package main

import (
	"log"
	"os"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/student"
	"github.com/trezcool/ngazi/storage/database"
	pgrepos "github.com/trezcool/ngazi/storage/database/pg"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	stdSvc := student.NewService(pgrepos.NewStudentRepository(db))
	progSvc := progression.NewService(pgrepos.NewRecordRepository(db), stdSvc, nil, stdLogger{logger}, conf)

	// start CLI
	cli := commandLine{
		db:      db,
		stdSvc:  stdSvc,
		progSvc: progSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

// stdLogger adapts the std logger to core.Logger for CLI use.
type stdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*stdLogger)(nil)

func (l stdLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l stdLogger) Debug(msg string, args ...interface{}) { l.print(msg, args) }
func (l stdLogger) Info(msg string, args ...interface{})  { l.print(msg, args) }
func (l stdLogger) Warn(msg string, args ...interface{})  { l.print(msg, args) }
func (l stdLogger) Error(msg string, args ...interface{}) { l.print(msg, args) }
func (l stdLogger) Fatal(msg string, args ...interface{}) { l.print(msg, args); l.std.Fatal(msg) }
