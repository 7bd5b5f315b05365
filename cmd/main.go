/*
Copyright 2024 Svelto Authors.

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

	svelto "github.com/balazzarini/svelto-app"
	"github.com/balazzarini/svelto-app/config"
	"github.com/balazzarini/svelto-app/database"
	"github.com/balazzarini/svelto-app/internal/notification"
)

// Svelto represents the CLI application, encapsulating the root Cobra
// command.
type Svelto struct {
	cmd *cobra.Command
}

// sveltoInstance holds the service instance and its configuration, shared
// by every subcommand.
type sveltoInstance struct {
	svelto *svelto.Svelto
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service before any
// command executes.
func preRun(app *sveltoInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("svelto.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSvelto, err := setupSvelto(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.svelto = newSvelto
		app.cnf = cnf

		return nil
	}
}

// setupSvelto connects the datasource and builds the service instance.
func setupSvelto(cfg *config.Configuration) (*svelto.Svelto, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSvelto, err := svelto.NewSvelto(db)
	if err != nil {
		return nil, fmt.Errorf("error creating svelto: %v", err)
	}
	return newSvelto, nil
}

// NewCLI creates the command-line interface for the conciliation server.
func NewCLI() *Svelto {
	var configFile string
	s := &sveltoInstance{}

	var rootCmd = &cobra.Command{
		Use:   "svelto",
		Short: "Payment gateway to ERP conciliation server",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./svelto.json", "Configuration file for svelto")

	rootCmd.PersistentPreRunE = preRun(s)

	rootCmd.AddCommand(serverCommands(s))
	rootCmd.AddCommand(syncCommands(s))
	rootCmd.AddCommand(migrateCommands())

	return &Svelto{cmd: rootCmd}
}

func (w Svelto) executeCLI() {
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
