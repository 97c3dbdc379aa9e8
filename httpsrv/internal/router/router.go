package router

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
)

const (
	// maxLineSize bounds a single identifier line of a batch body.
	maxLineSize = 64 * 1024
	// maxBatchSize bounds a whole batch body.
	maxBatchSize = 32 << 20
)

type SlotResponse struct {
	ID        string     `json:"id"`
	Algorithm string     `json:"algorithm"`
	Slots     int        `json:"slots"`
	Slot      slots.Slot `json:"slot"`
	Shard     string     `json:"shard,omitempty"`
}

type ShardResponse struct {
	Slot  string `json:"slot"`
	Shard string `json:"shard"`
}

type BandsRequest struct {
	Slots int          `json:"slots"`
	Bands []slots.Band `json:"bands"`
}

type Router struct {
	db           *engine.Engine
	logger       *zap.Logger
	maxBatchSize int64
}

func NewRouter(db *engine.Engine, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		db:           db,
		logger:       logger,
		maxBatchSize: maxBatchSize,
	}
}

func (r *Router) HandleSlot(w http.ResponseWriter, rq *http.Request) {
	alg, err := engine.ParseAlgorithm(rq.PathValue("algorithm"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	n, err := slotCount(rq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := rq.PathValue("id")
	slot, err := r.db.Assign(alg, id, n)
	if err != nil {
		r.writeError(w, "assign slot", err)
		return
	}

	resp := SlotResponse{ID: id, Algorithm: alg.String(), Slots: n, Slot: slot}
	if resp.Slots <= 0 {
		resp.Slots = r.defaultSlots(alg)
	}
	if alg.Equal(slots.CRC16) && resp.Slots == r.db.Bands().Slots() {
		resp.Shard = r.db.Shard(slot)
	}
	r.writeJSON(w, resp)
}

func (r *Router) HandleForget(w http.ResponseWriter, rq *http.Request) {
	alg, err := engine.ParseAlgorithm(rq.PathValue("algorithm"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	n, err := slotCount(rq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.db.Forget(alg, n, rq.PathValue("id")); err != nil {
		r.writeError(w, "forget assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) HandleShard(w http.ResponseWriter, rq *http.Request) {
	value := rq.PathValue("slot")
	r.writeJSON(w, ShardResponse{Slot: value, Shard: r.db.ShardForValue(value)})
}

// HandleBatch assigns one identifier per body line. Blank lines are kept as
// missing identifiers so the output lines up with the input.
func (r *Router) HandleBatch(w http.ResponseWriter, rq *http.Request) {
	defer rq.Body.Close()

	alg, err := engine.ParseAlgorithm(queryDefault(rq, "algorithm", slots.CRC16.String()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := slotCount(rq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var ids []string
	scanner := bufio.NewScanner(http.MaxBytesReader(w, rq.Body, r.maxBatchSize))
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		ids = append(ids, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Batch body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	result, err := r.db.AssignBatch(rq.Context(), alg, n, ids)
	if err != nil {
		r.writeError(w, "assign batch", err)
		return
	}
	r.logger.Info("batch assigned",
		zap.String("algorithm", result.Algorithm),
		zap.Int("total", result.Summary.Total),
		zap.Int("missing", result.Summary.Missing),
		zap.Int("saved", result.Saved))
	r.writeJSON(w, result)
}

func (r *Router) HandleRange(w http.ResponseWriter, rq *http.Request) {
	alg, err := engine.ParseAlgorithm(rq.PathValue("algorithm"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	n, err := slotCount(rq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	full := alg.Range(r.defaultSlots(alg))
	if n > 0 {
		full = alg.Range(n)
	}
	start, err := queryInt(rq, "start", full.Start())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := queryInt(rq, "end", full.End())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := r.db.IdentifiersInRange(alg, n, slots.SlotRange{start, end})
	if err != nil {
		r.writeError(w, "list identifiers", err)
		return
	}
	r.writeJSON(w, records)
}

func (r *Router) HandleBands(w http.ResponseWriter, rq *http.Request) {
	table := r.db.Bands()
	r.writeJSON(w, BandsRequest{Slots: table.Slots(), Bands: table.Bands()})
}

func (r *Router) HandlePublishBands(w http.ResponseWriter, rq *http.Request) {
	defer rq.Body.Close()

	var req BandsRequest
	if err := json.NewDecoder(rq.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid band table", http.StatusBadRequest)
		return
	}
	table, err := slots.NewBandTable(req.Slots, req.Bands...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.db.PublishBands(table); err != nil {
		r.writeError(w, "publish bands", err)
		return
	}
	r.logger.Info("band table replaced", zap.Strings("shards", table.Names()))
	r.writeJSON(w, BandsRequest{Slots: table.Slots(), Bands: table.Bands()})
}

func (r *Router) HandleInfo(w http.ResponseWriter, rq *http.Request) {
	r.writeJSON(w, r.db.Info())
}

func (r *Router) defaultSlots(alg slots.Algorithm) int {
	config := r.db.Config()
	if alg.Equal(slots.CRC16) {
		return config.RedisSlots
	}
	return config.FleetSlots
}

func (r *Router) writeError(w http.ResponseWriter, action string, err error) {
	switch {
	case engine.IsInputError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrPersistenceDisable):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		r.logger.Error("request failed", zap.String("action", action), zap.Error(err))
		http.Error(w, fmt.Sprintf("Error: %s: %v", action, err), http.StatusInternalServerError)
	}
}

func (r *Router) writeJSON(w http.ResponseWriter, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("failed to marshal response", zap.Error(err))
		http.Error(w, "Error marshaling response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(resp)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		r.logger.Warn("failed to write response", zap.Error(err))
	}
}

func queryDefault(rq *http.Request, key, fallback string) string {
	if v := rq.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func queryInt(rq *http.Request, key string, fallback int) (int, error) {
	v := rq.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

// slotCount reads ?slots=N; an absent parameter means the configured default.
func slotCount(rq *http.Request) (int, error) {
	if !rq.URL.Query().Has("slots") {
		return 0, nil
	}
	n, err := queryInt(rq, "slots", 0)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, slots.ErrInvalidSlotCount
	}
	return n, nil
}
