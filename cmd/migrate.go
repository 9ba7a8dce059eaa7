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
	"database/sql"
	"fmt"
	"log"

	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

const schemaName = "dealflow"

var migrations = migrate.EmbedFileSystemMigrationSource{
	FileSystem: dealflow.SQLFiles,
	Root:       "sql",
}

// openMigrationDB connects and points sql-migrate at the dealflow schema.
// The gorp_migrations table lives in that schema, so it is created first.
func openMigrationDB(d *dealflowInstance) (*sql.DB, error) {
	db, err := database.ConnectDB(d.cnf.DataSource)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + schemaName); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	migrate.SetSchema(schemaName)
	return db, nil
}

func runMigrations(d *dealflowInstance, dir migrate.MigrationDirection, steps int) (int, error) {
	db, err := openMigrationDB(d)
	if err != nil {
		return 0, err
	}
	return migrate.ExecMax(db, "postgres", migrations, dir, steps)
}

// migrateCommands groups the schema commands: up, down and status.
func migrateCommands(d *dealflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back the dealflow schema",
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "apply pending migrations",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(d, migrate.Up, upSteps)
			if err != nil {
				log.Fatalf("Error migrating up: %v", err)
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "apply at most this many migrations (0 applies all)")

	downSteps := 1
	down := &cobra.Command{
		Use:   "down",
		Short: "roll back applied migrations",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(d, migrate.Down, downSteps)
			if err != nil {
				log.Fatalf("Error migrating down: %v", err)
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "roll back this many migrations (0 rolls back all)")

	status := &cobra.Command{
		Use:   "status",
		Short: "list applied migrations",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(d)
			if err != nil {
				log.Fatal(err)
			}
			records, err := migrate.GetMigrationRecords(db, "postgres")
			if err != nil {
				log.Fatalf("Error reading migrations: %v", err)
			}
			for _, r := range records {
				fmt.Printf("%-28s %s\n", r.Id, r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
