package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
	"github.com/trezcool/proofmate/services/analyzer"
	emailsvc "github.com/trezcool/proofmate/services/email"
	"github.com/trezcool/proofmate/services/filestore"
	logsvc "github.com/trezcool/proofmate/services/logger"
	"github.com/trezcool/proofmate/storage/database"
	dummydb "github.com/trezcool/proofmate/storage/database/dummy"
	pgrepos "github.com/trezcool/proofmate/storage/database/postgres"
	kvstore "github.com/trezcool/proofmate/storage/kv"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewStdLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile))

	// set up user DB
	var (
		sqlDB   *sql.DB
		usrRepo user.Repository
	)
	if conf.Database.Engine == core.BackendMemory {
		usrRepo = dummydb.NewUserRepository(dummydb.Open())
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(err.Error(), err)
		}
		defer db.Close()
		sqlDB = db.DB
		usrRepo = pgrepos.NewUserRepository(db)
	}

	kv, err := kvstore.New(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	defer kv.Close()

	files, err := filestore.New(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		db:         sqlDB,
		usrSvc:     user.NewService(usrRepo, mailSvc, conf),
		asgSvc:     assignment.NewService(kv, analyzer.New(conf, logger), files, logger),
		mailSvc:    mailSvc,
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}
