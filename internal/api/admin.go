package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"starlink-api/internal/ingest"
	"starlink-api/internal/logger"
	"starlink-api/internal/position"
)

var validate = validator.New()

// requireAdmin：x-admin-token 校验；未配置 ADMIN_TOKEN 时管理接口一律拒绝
func (h *handlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if h.d.AdminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(h.d.AdminToken)) != 1 {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
			return
		}
		next(w, r)
	}
}

// 文档注释：管理接口触发文件导入
// 背景：导入耗时较长，后台执行并立即返回 202 与 run_id，进度通过 GET /admin/ingest/{id} 查询
// 约束：导入幂等，重复提交同一文件只会补入新增记录
func (h *handlers) startIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, &position.ValidationError{Field: "request", Reason: err.Error()})
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		writeError(w, r, &position.ValidationError{Field: "path", Reason: "file not readable"})
		return
	}
	opts := h.d.Ingest
	opts.RunID = uuid.NewString()
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	opts.SkipInvalid = opts.SkipInvalid || req.SkipInvalid
	h.runs.start(opts.RunID, req.Path)
	go func() {
		st, err := ingest.IngestFile(h.d.Ctx, req.Path, h.d.Writer, opts, h.d.Engine)
		h.runs.finish(opts.RunID, st, err)
		if err != nil {
			logger.L().Error("admin_ingest_error", "run_id", opts.RunID, "err", err)
		}
	}()
	logger.L().Info("admin_ingest_accepted", "run_id", opts.RunID, "path", req.Path)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": opts.RunID, "status": statusRunning})
}

func (h *handlers) ingestStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, ok := h.runs.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

const (
	statusRunning = "running"
	statusDone    = "done"
	statusFailed  = "failed"
)

type runStatus struct {
	RunID      string     `json:"run_id"`
	Path       string     `json:"path"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Records    int        `json:"records"`
	Invalid    int        `json:"invalid"`
	Batches    int        `json:"batches"`
	Inserted   int        `json:"inserted"`
	Duplicates int        `json:"duplicates"`
	Error      string     `json:"error,omitempty"`
}

// runRegistry：进程内的导入任务状态，仅保留最近 maxRuns 条
type runRegistry struct {
	mu    sync.Mutex
	runs  map[string]*runStatus
	order []string
}

const maxRuns = 100

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runStatus)}
}

func (rr *runRegistry) start(id, path string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.runs[id] = &runStatus{RunID: id, Path: path, Status: statusRunning, StartedAt: time.Now().UTC()}
	rr.order = append(rr.order, id)
	for len(rr.order) > maxRuns {
		delete(rr.runs, rr.order[0])
		rr.order = rr.order[1:]
	}
}

func (rr *runRegistry) finish(id string, st ingest.Stats, err error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	run, ok := rr.runs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Records, run.Invalid, run.Batches = st.Records, st.Invalid, st.Batches
	run.Inserted, run.Duplicates = st.Inserted, st.Duplicates
	run.Status = statusDone
	if err != nil {
		run.Status = statusFailed
		run.Error = err.Error()
	}
}

func (rr *runRegistry) get(id string) (runStatus, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	run, ok := rr.runs[id]
	if !ok {
		return runStatus{}, false
	}
	return *run, true
}
