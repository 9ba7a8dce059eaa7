/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/database"
	"github.com/ownerfi/dealflow/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Dealflow represents the CLI application, encapsulating the root Cobra command.
type Dealflow struct {
	cmd *cobra.Command
}

// dealflowInstance holds the service and configuration shared by the commands.
type dealflowInstance struct {
	dealflow *dealflow.Dealflow
	cnf      *config.Configuration
}

// recoverPanic logs a panic and exits with an error status.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *dealflowInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		d, err := setupDealflow(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.dealflow = d
		app.cnf = cnf
		return nil
	}
}

// setupDealflow connects to the database and wires the service.
func setupDealflow(cfg *config.Configuration) (*dealflow.Dealflow, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	d, err := dealflow.NewDealflow(db)
	if err != nil {
		return nil, fmt.Errorf("error creating dealflow: %v", err)
	}
	return d, nil
}

// NewCLI creates the root command and its subcommands.
func NewCLI() *Dealflow {
	var configFile string
	d := &dealflowInstance{}

	var rootCmd = &cobra.Command{
		Use:   "dealflow",
		Short: "Property deal classification and content workflow automation",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./dealflow.json", "Configuration file for dealflow")
	rootCmd.PersistentPreRunE = preRun(d, &configFile)

	rootCmd.AddCommand(serverCommands(d))
	rootCmd.AddCommand(workerCommands(d))
	rootCmd.AddCommand(migrateCommands(d))
	rootCmd.AddCommand(classifyCommands(d))
	rootCmd.AddCommand(recoverCommands(d))
	rootCmd.AddCommand(retryCommands(d))
	rootCmd.AddCommand(reindexCommands(d))
	rootCmd.AddCommand(configCommands(d))

	return &Dealflow{cmd: rootCmd}
}

func (w Dealflow) executeCLI() {
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
