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

package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/internal/cache"
)

// Package-level singleton so every caller shares one connection pool.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		ledgerCache, errCache := cache.NewCache()
		if errCache != nil {
			// read paths fall back to the database when the cache is down
			log.Printf("cache unavailable, continuing without it: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: ledgerCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens and pings a Postgres connection. The schema itself is
// managed by the embedded migrations, applied with `tako migrate up`.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database connection")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "error pinging database")
	}
	return db, nil
}
