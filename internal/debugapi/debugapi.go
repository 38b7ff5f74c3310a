// Package debugapi exposes a node's current state as read-only JSON,
// grounded in edirooss-zmux-server's gin handler conventions
// (zap-logged middleware, c.JSON, a single gin.H{"message": ...} error
// shape). It never participates in replication: every handler here only
// reads a *node.Node, mirroring simulateNode.py's printNode debug dump.
package debugapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"replistore/internal/node"
	"replistore/internal/record"
)

// NewRouter returns a gin.Engine serving GET /store, GET /sds and
// GET /appdata for n. log defaults to a no-op logger.
func NewRouter(n *node.Node, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("debugapi")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLogger(log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "instance": n.Instance()})
	})
	r.GET("/store", getStore(n))
	r.GET("/sds", getSDS(n))
	r.GET("/appdata", getAppData(n))

	return r
}

// storeRecord is the JSON shape of a single Store entry.
type storeRecord struct {
	RecordID    string            `json:"record_id"`
	Data        string            `json:"data"`
	LastSavedBy string            `json:"last_saved_by"`
	History     map[string]uint64 `json:"history"`
	Partition   string            `json:"partition"`
}

func getStore(n *node.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		var out []storeRecord
		err := n.Store().Range(func(r record.Record) bool {
			out = append(out, storeRecord{
				RecordID:    r.RecordID,
				Data:        r.Data,
				LastSavedBy: fmt.Sprintf("%s:%d", r.LastSavedBy.Instance, r.LastSavedBy.Counter),
				History:     r.History,
				Partition:   r.Partition.String(),
			})
			return true
		})
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.Header("X-Total-Count", strconv.Itoa(len(out)))
		c.JSON(http.StatusOK, out)
	}
}

func getSDS(n *node.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		universal := n.SDS().UniversalVector()
		c.JSON(http.StatusOK, gin.H{
			"instance":  n.Instance(),
			"universal": universal,
		})
	}
}

// appEntry is the JSON shape of a single AppData entry.
type appEntry struct {
	RecordID  string `json:"record_id"`
	Data      string `json:"data"`
	Dirty     string `json:"dirty"`
	Partition string `json:"partition"`
}

func getAppData(n *node.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		var out []appEntry
		n.AppData().Range(func(e record.AppEntry) bool {
			out = append(out, appEntry{
				RecordID:  e.RecordID,
				Data:      e.Data,
				Dirty:     e.Dirty.String(),
				Partition: e.Partition.String(),
			})
			return true
		})
		c.Header("X-Total-Count", strconv.Itoa(len(out)))
		c.JSON(http.StatusOK, out)
	}
}

// zapLogger mirrors edirooss-zmux-server's ZapLogger gin middleware.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last().Err))
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
