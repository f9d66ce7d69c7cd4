// Package main starts a gateway command server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/iqrfcloud/gwcmd/engine"
	enginehttp "github.com/iqrfcloud/gwcmd/engine/http"
	"github.com/iqrfcloud/gwcmd/gw"
	"github.com/iqrfcloud/gwcmd/gw/httpgw"
	"github.com/iqrfcloud/gwcmd/gw/mqttgw"
	httpcmd "github.com/iqrfcloud/gwcmd/http"
	"github.com/iqrfcloud/gwcmd/logkeys"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "gwcmd"
	apiRealm    = "gwcmd"
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flListen  = flag.String("listen", ":9005", "HTTP listen address")
		flVersion = flag.Bool("version", false, "print version and exit")
		flDumpGW  = flag.Bool("dump-gw", false, "dump inbound gateway messages")
		flAPIKey  = flag.String("api", "", "API key for API endpoints")
		flGW      = flag.String("gw", "http", "gateway transport (http or mqtt)")
		flGWURL   = flag.String("gw-url", "", "URL of the HTTP gateway bridge (or MQTT broker)")
		flGWAPI   = flag.String("gw-api", "", "HTTP gateway bridge API key")
		flMQTTID  = flag.String("mqtt-client-id", "gwcmd", "MQTT client ID")
		flStorage = flag.String("storage", "file", "name of storage backend")
		flDSN     = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flSDBDSN  = flag.String("sensordb-dsn", "", "sensor database data source name")
		flWorkSec = flag.Uint("worker-interval", uint(engine.DefaultDuration/time.Second), "interval for worker in seconds")
		flRetain  = flag.Uint("retention", uint(engine.DefaultRetentionDuration/time.Second), "completed instance retention in seconds")
		flCmdTO   = flag.Uint("command-timeout", uint(engine.DefaultCommandTimeout/time.Second), "command response wait window in seconds")
		flPollSec = flag.Uint("poll-interval", uint(engine.DefaultPollInterval/time.Second), "device readiness poll interval in seconds")
		flStrict  = flag.Bool("strict-db", false, "fail unbond workflows on sensor database errors")
	)
	envflag.Parse("GWCMD_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	if *flGWURL == "" {
		logger.Info(logkeys.Error, "gateway URL required")
		os.Exit(1)
	}

	// configure storage
	storage, err := parseStorage(*flStorage, *flDSN, *flSDBDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the gateway transport
	var publisher gw.CommandPublisher
	var mqttTransport *mqttgw.Transport
	switch *flGW {
	case "http":
		publisher = httpgw.NewPublisher(
			*flGWURL,
			httpgw.WithLogger(logger.With("service", "gateway")),
			httpgw.WithAPIKey(*flGWAPI),
		)
	case "mqtt":
		mqttTransport, err = mqttgw.New(
			*flGWURL,
			*flMQTTID,
			mqttgw.WithLogger(logger.With("service", "gateway")),
		)
		if err != nil {
			logger.Info(logkeys.Message, "creating mqtt transport", logkeys.Error, err)
			os.Exit(1)
		}
		defer mqttTransport.Close()
		publisher = mqttTransport
	default:
		logger.Info(logkeys.Error, fmt.Sprintf("unknown gateway transport: %s", *flGW))
		os.Exit(1)
	}

	// configure the workflow engine
	eOpts := []engine.Option{engine.WithLogger(logger.With("service", "engine"))}
	if *flCmdTO > 0 {
		eOpts = append(eOpts, engine.WithCommandTimeout(time.Second*time.Duration(*flCmdTO)))
	}
	if *flPollSec > 0 {
		eOpts = append(eOpts, engine.WithPollInterval(time.Second*time.Duration(*flPollSec)))
	}
	e := engine.New(storage.engine, publisher, eOpts...)

	if mqttTransport != nil {
		if err = mqttTransport.Subscribe(e); err != nil {
			logger.Info(logkeys.Message, "subscribing to responses", logkeys.Error, err)
			os.Exit(1)
		}
	}

	// configure the workflow engine worker (async runner/job)
	var eWorker *engine.Worker
	if *flWorkSec > 0 {
		eWorker = engine.NewWorker(
			e,
			storage.engine,
			engine.WithWorkerLogger(logger.With("service", "engine worker")),
			engine.WithWorkerDuration(time.Second*time.Duration(*flWorkSec)),
			engine.WithWorkerRetention(time.Second*time.Duration(*flRetain)),
		)
	}

	// register workflows with the engine
	if err = registerWorkflows(logger, e, storage, *flStrict); err != nil {
		logger.Info(logkeys.Message, "registering workflows", logkeys.Error, err)
		os.Exit(1)
	}

	// resume instances left incomplete by the previous process
	if err = e.ResumeAll(context.Background()); err != nil {
		logger.Info(logkeys.Message, "resuming instances", logkeys.Error, err)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	var h http.Handler = httpgw.WebhookHandler(e, logger.With("handler", "webhook"))
	if *flDumpGW {
		h = httpcmd.DumpHandler(h, os.Stdout)
	}
	mux.Handle("/webhook", h, "POST")

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			enginehttp.HandleAPIv1("/v1", mux, logger, e)
		})
	}

	if eWorker != nil {
		go func() {
			err := eWorker.Run(context.Background())
			logs := []interface{}{logkeys.Message, "engine worker stopped"}
			if err != nil {
				logger.Info(append(logs, logkeys.Error, err)...)
				return
			}
			logger.Debug(logs...)
		}()
	}

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
