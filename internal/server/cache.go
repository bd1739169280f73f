package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"websnatch/internal/logging"
)

// pdfCacheKey derives a SHA256-based cache key from the conversion
// inputs. URL-based and HTML-based requests never collide because the
// hashed content differs.
func pdfCacheKey(params *requestParams) string {
	h := sha256.New()
	if params.URL != "" {
		h.Write([]byte(params.URL))
	} else {
		h.Write([]byte(params.Job.HTML))
	}
	h.Write([]byte(params.Job.PaperName))
	h.Write([]byte(params.Job.Orientation))
	h.Write([]byte(strconv.FormatFloat(params.Job.Margin, 'f', 2, 64)))
	return "pdfcache:" + hex.EncodeToString(h.Sum(nil))
}

// cachedPDF attempts to retrieve a cached PDF from Redis. A miss returns
// (nil, nil).
func (svc *Service) cachedPDF(c *fiber.Ctx, key, filename string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), time.Second)
	defer cancel()

	cached, err := svc.redis.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		logging.Warn("redis read failed", "error", err.Error())
		return nil, err
	}

	logging.Info("pdf cache hit", "key", key)
	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return cached, nil
}

// cachePDF stores a rendered PDF in Redis with the configured TTL. TTLs
// below a minute are raised to a minute.
func (svc *Service) cachePDF(c *fiber.Ctx, key string, data []byte) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), time.Second)
	defer cancel()

	ttl := svc.cfg.Cache.PDFCacheTTL
	if ttl < time.Minute {
		ttl = time.Minute
	}

	if err := svc.redis.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		logging.Warn("redis write failed", "error", err.Error())
	}
}
