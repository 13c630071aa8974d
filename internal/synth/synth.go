// Package synth generates synthetic grid error records for demos and tests.
package synth

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/autoheal/internal/model"
)

type errorTemplate struct {
	msg    string
	module string
}

var errorMap = map[string]errorTemplate{
	"0x80040115": {"FATAL ERROR: caught a fatal signal of exception [SIGSEGV].", "IS_Worker_Thread"},
	"0xC0042003": {"ERROR: Writer execution failed. Target file [tran_prod_ledger.csv] is locked by another process.", "WRITER_1_1_1"},
	"0x80070005": {"FATAL: Access Denied to repository metadata. Check Kerberos ticket status.", "REP_61016"},
	"0x80070003": {"ERROR: The system cannot find the path specified [/data/inbound/gl_feed.dat].", "READER_1_1_1"},
}

var unknownTemplate = errorTemplate{"ERROR: Session task failed with an unclassified error.", "IS_Worker_Thread"}

// ErrorCodes lists the codes the generator emits, in a stable order.
var ErrorCodes = []string{"0x80040115", "0xC0042003", "0x80070005"}

var (
	workflows     = []string{"wf_Retail_Daily", "wf_Compliance_Audit", "wf_General_Ledger"}
	folders       = []string{"FIN_PROD", "RETAIL_OPS", "AUDIT_V3"}
	sourceSystems = []string{"Mainframe_DB2_CORE", "Wealth_SOR", "Retail_ODS"}
	targetTables  = []string{"tran_prod_ledger", "compliance_audit_log", "retail_daily_staging", "gl_recon_master"}
	taskNouns     = []string{"Accounts", "Positions", "Ledger", "Trades", "Balances", "Customers", "Rates"}
)

const (
	integrationService = "IS_Bank_Prod_Grid"
	alphanumeric       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces records. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// New returns a generator seeded with seed. Equal seeds and clocks yield
// equal records.
func New(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

func pick[T any](r *rand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

// Record generates one record.
func (g *Generator) Record() model.Record {
	code := pick(g.rng, ErrorCodes)
	node := fmt.Sprintf("Node_%d", g.rng.IntN(9)+1)
	return g.build(code, node)
}

// Cluster generates count records sharing code and node, sorted by
// timestamp. Codes outside ErrorCodes get a generic message.
func (g *Generator) Cluster(count int, code, node string) []model.Record {
	out := make([]model.Record, 0, max(count, 0))
	for range count {
		out = append(out, g.build(code, node))
	}
	sortByTime(out)
	return out
}

func (g *Generator) build(code, node string) model.Record {
	tmpl, ok := errorMap[code]
	if !ok {
		tmpl = unknownTemplate
	}
	ts := g.now().UTC()
	stamp := ts.Format(time.RFC3339Nano)
	folder := pick(g.rng, folders)
	source := pick(g.rng, sourceSystems)
	table := pick(g.rng, targetTables)
	thread := 14000 + g.rng.IntN(1000)
	pid := 10000 + g.rng.IntN(40001)

	severity := model.SevFatal
	if code == "0xC0042003" {
		severity = model.SevError
	}
	prefix := fmt.Sprintf("%s_%d", severity, thread)

	raw := strings.Join([]string{
		fmt.Sprintf("MAPPING> %s %s [%s] INFO: Initializing task...", prefix, tmpl.module, stamp),
		fmt.Sprintf("MAPPING> %s %s [%s] %s (Error Code: %s)", prefix, tmpl.module, stamp, tmpl.msg, code),
		fmt.Sprintf("MAPPING> %s %s [%s] FATAL: process [pid=%d] exiting.", prefix, tmpl.module, stamp, pid),
		fmt.Sprintf("--- Context: Folder [%s] | IntegrationSvc [%s] | Source [%s] ---", folder, integrationService, source),
	}, "\n")

	return model.Record{
		ID:           g.uuid().String(),
		Timestamp:    ts,
		Severity:     severity,
		NodeID:       node,
		WorkflowName: pick(g.rng, workflows),
		SessionID:    "SESS_" + g.alnum(6),
		TaskName:     "mkt_Load_" + pick(g.rng, taskNouns),
		ErrorCode:    code,
		Message:      tmpl.msg,
		RawLog:       raw,
		Metadata: model.Metadata{
			Folder:             folder,
			IntegrationService: integrationService,
			SourceSystem:       source,
			TargetTable:        table,
		},
	}
}

// Records generates count records sorted by timestamp.
func (g *Generator) Records(count int) []model.Record {
	out := make([]model.Record, 0, max(count, 0))
	for range count {
		out = append(out, g.Record())
	}
	sortByTime(out)
	return out
}

func sortByTime(recs []model.Record) {
	slices.SortStableFunc(recs, func(a, b model.Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

func (g *Generator) alnum(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[g.rng.IntN(len(alphanumeric))]
	}
	return string(b)
}

// uuid draws a random v4 UUID from the generator's source so IDs follow
// the seed.
func (g *Generator) uuid() uuid.UUID {
	var u uuid.UUID
	for i := 0; i < len(u); i += 8 {
		v := g.rng.Uint64()
		for j := 0; j < 8; j++ {
			u[i+j] = byte(v >> (8 * j))
		}
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}
