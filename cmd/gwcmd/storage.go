package main

import (
	"fmt"

	storageeng "github.com/iqrfcloud/gwcmd/engine/storage"
	storageengdiskv "github.com/iqrfcloud/gwcmd/engine/storage/diskv"
	storageenginmem "github.com/iqrfcloud/gwcmd/engine/storage/inmem"
	storageengmysql "github.com/iqrfcloud/gwcmd/engine/storage/mysql"
	storagesdb "github.com/iqrfcloud/gwcmd/subsystem/sensordb/storage"
	storagesdbinmem "github.com/iqrfcloud/gwcmd/subsystem/sensordb/storage/inmem"
	storagesdbmysql "github.com/iqrfcloud/gwcmd/subsystem/sensordb/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	engine   storageeng.Storage
	sensordb storagesdb.Storage
}

func parseStorage(name, dsn, sensorDSN string) (*storageConfig, error) {
	cfg := new(storageConfig)
	switch name {
	case "inmem":
		cfg.engine = storageenginmem.New()
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		cfg.engine = storageengdiskv.New(dsn)
	case "mysql":
		var err error
		if cfg.engine, err = storageengmysql.New(storageengmysql.WithDSN(dsn)); err != nil {
			return nil, fmt.Errorf("creating mysql engine storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage: %s", name)
	}
	if sensorDSN == "" {
		cfg.sensordb = storagesdbinmem.New()
	} else {
		var err error
		if cfg.sensordb, err = storagesdbmysql.New(storagesdbmysql.WithDSN(sensorDSN)); err != nil {
			return nil, fmt.Errorf("creating mysql sensor database: %w", err)
		}
	}
	return cfg, nil
}
