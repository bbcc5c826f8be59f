// Command mdxquery-service is the HTTP front door for the MDX query
// evaluator: it wires config -> MetaClient/AggClient (gRPC) ->
// MetaCache -> AccessControl -> Calculator -> query.Driver, then
// exposes query.Driver.Execute over a Connect-wrapped HTTP endpoint.
//
// Consolidates the teacher's two disagreeing entrypoints
// (cmd/grid-service/main.go's bare net/http mux over a pre-aggregated
// grid cache, and src/main.go's gin router over the Postgres/Redis/FX
// pipeline) into one gin-based service pointed at this module's own
// evaluation pipeline instead.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"mdxgrid/evaluator/internal/aggclient"
	"mdxgrid/evaluator/internal/config"
	"mdxgrid/evaluator/internal/metacache"
	"mdxgrid/evaluator/internal/metaclient"
	"mdxgrid/evaluator/internal/query"
	"mdxgrid/evaluator/internal/resultcache"
	"mdxgrid/evaluator/pkg/audit"
	"mdxgrid/evaluator/pkg/event"
	"mdxgrid/evaluator/pkg/orchestration"
)

func main() {
	cfg, err := config.LoadForEnv(configPath())
	if err != nil {
		log.Fatalf("mdxquery-service: config: %v", err)
	}

	metaClient, err := metaclient.Dial(cfg.MetaGrpcURL)
	if err != nil {
		log.Fatalf("mdxquery-service: dial metadata service: %v", err)
	}
	defer metaClient.Close()

	aggClient, err := aggclient.Dial(cfg.AggGrpcURL)
	if err != nil {
		log.Fatalf("mdxquery-service: dial aggregation service: %v", err)
	}
	defer aggClient.Close()

	metaCache := metacache.New()
	if err := seedMetaCache(metaCache, metaClient, cfg.DatabaseURL); err != nil {
		log.Fatalf("mdxquery-service: initial metadata load: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	qCfg := query.DefaultConfig()
	if cfg.FiducialCap > 0 {
		qCfg.FiducialCap = cfg.FiducialCap
	}
	qCfg.Access.MeasuresAlwaysAccessible = cfg.MeasuresAlwaysAccessible

	driver := query.New(metaClient, metaCache, aggClient, qCfg)

	l2 := resultcache.NewL2(rdb, 5*time.Minute)
	rcache, err := resultcache.New(l2, rdb, 4096, "", hostnameOrDefault())
	if err != nil {
		log.Fatalf("mdxquery-service: result cache: %v", err)
	}
	rcache.StartInvalidationSubscriber(context.Background())

	auditLogger := audit.NewAsyncLogger()
	defer auditLogger.Close()

	var bus event.Bus
	if cfg.KafkaBroker != "" {
		bus = event.NewKafkaBus([]string{cfg.KafkaBroker}, "mdx-events")
		go watchSchemaReloads(context.Background(), bus, metaCache, metaClient, rcache)
	}

	handler := orchestration.NewGridQueryServiceHandler(driver, rcache, 5*time.Minute)

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/query", httpQueryHandler(handler, auditLogger, bus))

	addr := cfg.HTTPPort
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("mdxquery-service: listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("mdxquery-service: server error: %v", err)
	}
}

// httpQueryHandler binds a QueryRequest from the gin context, wraps it
// as a connect.Request so the handler gets Connect's error-code
// conventions, and writes the response (or translated error) back as
// JSON.
func httpQueryHandler(handler *orchestration.GridQueryServiceHandler, logger audit.Logger, bus event.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orchestration.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		resp, err := handler.Execute(c.Request.Context(), connect.NewRequest(&req))
		duration := time.Since(start)

		cellCount := 0
		if resp != nil && resp.Msg != nil && resp.Msg.Entry != nil {
			cellCount = len(resp.Msg.Entry.Cells)
		}
		logger.LogQuery(c.Request.Context(), req.UserName, req.MDXText, duration, cellCount, err)
		if bus != nil {
			payload, _ := json.Marshal(map[string]any{"mdx_text": req.MDXText, "cell_count": cellCount})
			_ = bus.Publish(c.Request.Context(), &event.QueryEventGo{
				EventID:   req.UserName + ":" + start.Format(time.RFC3339Nano),
				Timestamp: start.Unix(),
				Type:      event.TypeQueryExecuted,
				UserName:  req.UserName,
				Payload:   payload,
			})
		}

		if err != nil {
			c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp.Msg)
	}
}

// httpStatusFor maps a Connect error code to an HTTP status, the same
// translation Connect's own HTTP transport performs internally.
func httpStatusFor(err error) int {
	var connErr *connect.Error
	if !asConnectError(err, &connErr) {
		return http.StatusInternalServerError
	}
	switch connErr.Code() {
	case connect.CodeInvalidArgument:
		return http.StatusBadRequest
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func asConnectError(err error, target **connect.Error) bool {
	ce, ok := err.(*connect.Error)
	if ok {
		*target = ce
	}
	return ok
}

// watchSchemaReloads subscribes to the mdx-events topic and reloads
// MetaCache (and invalidates every cached query result) whenever a
// TypeSchemaReloaded event arrives.
func watchSchemaReloads(ctx context.Context, bus event.Bus, metaCache *metacache.Cache, metaClient metacache.MetaClient, rcache *resultcache.Cache) {
	events, err := bus.Subscribe(ctx, "mdx-events")
	if err != nil {
		log.Printf("mdxquery-service: schema-reload subscribe failed: %v", err)
		return
	}
	for ev := range events {
		if ev.Type != event.TypeSchemaReloaded {
			continue
		}
		if err := metaCache.Reload(ctx, metaClient); err != nil {
			log.Printf("mdxquery-service: metadata reload failed: %v", err)
			continue
		}
		if err := rcache.InvalidateAll(ctx); err != nil {
			log.Printf("mdxquery-service: result cache invalidation failed: %v", err)
		}
	}
}

// seedMetaCache loads the initial member/level snapshot. When
// databaseURL is configured it bulk-loads straight from Postgres via
// PostgresBulkLoader (bypassing the gRPC facade, for deployments that
// colocate the evaluator with the metadata warehouse); otherwise it
// falls back to the gRPC metaClient, the same source MetaCache.Reload
// uses afterward.
func seedMetaCache(metaCache *metacache.Cache, metaClient metacache.MetaClient, databaseURL string) error {
	if databaseURL == "" {
		return metaCache.Init(context.Background(), metaClient)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	loader, err := metaclient.NewPostgresBulkLoader(db, 10*time.Second)
	if err != nil {
		return err
	}
	defer loader.Close()

	return metaCache.Init(context.Background(), loader)
}

func configPath() string {
	if p := os.Getenv("MDX_CONFIG_PATH"); p != "" {
		return p
	}
	return "config.toml"
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "mdxquery-node"
	}
	return h
}
