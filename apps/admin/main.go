package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
	"github.com/hcanning/homeroom/storage/database"
	sqlxrepos "github.com/hcanning/homeroom/storage/database/sqlx"
	"github.com/hcanning/homeroom/storage/securefile"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	cli := commandLine{dataDir: conf.DataDir, out: os.Stdout}

	// set up storage
	var repo school.Repository
	if conf.Database.Relational() {
		db, err := database.Open(conf.Database)
		errAndDie(err)
		sqlRepo := sqlxrepos.NewRepository(db)
		repo = sqlRepo
		cli.db = db
		cli.importer = sqlRepo
	} else {
		fileRepo, err := securefile.Open(conf.DataDir)
		errAndDie(err)
		repo = fileRepo
	}

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	cli.svc = school.NewService(repo, auth.NewHasher(auth.DefaultHasherParams), validate)

	// start CLI
	err := cli.run(os.Args)
	closeRepo(repo)
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// closeRepo also closes the database handle shared with the CLI.
func closeRepo(repo school.Repository) {
	if err := repo.Close(); err != nil {
		logger.Printf("closing storage: %v", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
