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

// Package database is the Postgres datasource for listings, workflow items
// and their source articles.
package database

import (
	"database/sql"
	"sync"

	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/apierror"
	pgconn "github.com/ownerfi/dealflow/internal/pg-conn"
	"go.opentelemetry.io/otel"
)

var (
	instance *Datasource
	once     sync.Once
)

var tracer = otel.Tracer("dealflow.database")

// ErrNotFound matches every not-found error returned by the datasource.
var ErrNotFound = apierror.APIError{Code: apierror.ErrNotFound, Message: "not found"}

// ErrConflict matches unique violations.
var ErrConflict = apierror.APIError{Code: apierror.ErrConflict, Message: "conflict"}

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection opens the process wide connection pool on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	return pgconn.ConnectDB(cfg)
}
