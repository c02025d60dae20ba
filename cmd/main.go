/*
Copyright 2025 Halcyon Pay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/halcyonpay/tako"
	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/database"
	"github.com/halcyonpay/tako/internal/notification"
)

// Tako wraps the root Cobra command of the CLI.
type Tako struct {
	cmd *cobra.Command
}

// takoInstance holds the engine and configuration shared by all subcommands.
type takoInstance struct {
	tako *tako.Tako
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the engine before any
// subcommand executes.
func preRun(app *takoInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("tako.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		engine, err := setupTako(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.tako = engine
		app.cnf = cnf

		return nil
	}
}

func setupTako(cfg *config.Configuration) (*tako.Tako, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	engine, err := tako.NewTako(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tako: %v", err)
	}
	return engine, nil
}

// NewCLI assembles the command tree: server, workers and migrations.
func NewCLI() *Tako {
	var configFile string
	b := &takoInstance{}

	var rootCmd = &cobra.Command{
		Use:   "tako",
		Short: "wallet ledger and settlement engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tako.json", "Configuration file for tako")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Tako{cmd: rootCmd}
}

func (w Tako) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
