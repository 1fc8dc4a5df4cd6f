package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-dispatch/internal/models"
)

// RedisRegistry implements Registry on Redis GEO commands, with driver
// metadata in per-driver hashes. All writes are last-write-wins, which
// matches Redis semantics for both GEOADD and HSET.
type RedisRegistry struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisRegistry(addr, password, key string) *RedisRegistry {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRegistry{client: c, key: key, ctx: context.Background()}
}

func metaKey(id string) string { return "driver:meta:" + id }

func (r *RedisRegistry) UpdateLocation(driverID string, lat, lon float64) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: lon, Latitude: lat, Name: driverID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(driverID), map[string]interface{}{
		"last_seen": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisRegistry) SetOnline(driverID string, online bool) {
	_ = r.client.HSet(r.ctx, metaKey(driverID), map[string]interface{}{
		"online":    strconv.FormatBool(online),
		"last_seen": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisRegistry) SetApproval(driverID string, state models.ApprovalState) {
	_ = r.client.HSet(r.ctx, metaKey(driverID), map[string]interface{}{
		"approval": string(state),
	}).Err()
}

func (r *RedisRegistry) Eligible(driverID string) bool {
	m, err := r.client.HGetAll(r.ctx, metaKey(driverID)).Result()
	if err != nil || len(m) == 0 {
		return false
	}
	if m["online"] != "true" || m["approval"] != string(models.ApprovalApproved) {
		return false
	}
	// location known only if present in the geo set
	pos, err := r.client.GeoPos(r.ctx, r.key, driverID).Result()
	return err == nil && len(pos) == 1 && pos[0] != nil
}

func (r *RedisRegistry) FindEligible(pickup models.Coord, radiusKm float64) []models.Candidate {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	res, err := r.client.GeoRadius(r.ctx, r.key, pickup.Lon, pickup.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Candidate, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		if m["online"] != "true" || m["approval"] != string(models.ApprovalApproved) {
			continue
		}
		out = append(out, models.Candidate{
			DriverID:   g.Name,
			Loc:        models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistanceKm: g.Dist,
		})
	}
	return out
}
