package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/provider"
)

const bufSize = 1 << 20

func startGRPC(t *testing.T, f *fixture) *grpc.ClientConn {
	t.Helper()
	reg := testRegistry()
	sub := NewSubmitter(reg, f.store, f.queue, document.NewLoader(testLogger(), document.WithLocalFiles(false)), Defaults{VisionProvider: "stubvision", ParserProvider: "stubparser"}, testLogger())
	svc := NewHealthDataService(sub, f.store, f.store, testLogger())

	lis := bufconn.Listen(bufSize)
	srv := NewGRPCServer(svc, testLogger())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+HealthDataServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPCGetRecord(t *testing.T) {
	f := newFixture()
	rec := completedRecord()
	f.store.put(rec)
	conn := startGRPC(t, f)
	ctx := context.Background()

	out, err := invoke(ctx, conn, "GetRecord", map[string]any{"id": rec.ID.String()})
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got := out.GetFields()["status"].GetStringValue(); got != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", got)
	}
	data := out.GetFields()["data"].GetStructValue()
	if got := data.GetFields()["name"].GetStringValue(); got != "Jane Doe" {
		t.Errorf("data.name = %q, want Jane Doe", got)
	}

	tests := []struct {
		name string
		id   string
		want codes.Code
	}{
		{"missing", uuid.NewString(), codes.NotFound},
		{"bad id", "42", codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(ctx, conn, "GetRecord", map[string]any{"id": tt.id})
			if status.Code(err) != tt.want {
				t.Errorf("GetRecord() code = %v, want %v", status.Code(err), tt.want)
			}
		})
	}
}

func TestGRPCParseDocumentQueued(t *testing.T) {
	f := newFixture()
	conn := startGRPC(t, f)

	content := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 minimal"))
	out, err := invoke(context.Background(), conn, "ParseDocument", map[string]any{
		"fileName":    "checkup.pdf",
		"content":     content,
		"visionModel": "v-2",
	})
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	if got := out.GetFields()["status"].GetStringValue(); got != "PARSING" {
		t.Errorf("status = %q, want PARSING", got)
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.RecordID.String() != out.GetFields()["id"].GetStringValue() {
		t.Errorf("job record = %s, want %s", job.RecordID, out.GetFields()["id"].GetStringValue())
	}
	if job.Request.Document == nil || job.Request.Document.Name != "checkup.pdf" {
		t.Errorf("document = %+v, want checkup.pdf", job.Request.Document)
	}
	if job.RequestID == "" {
		t.Error("job request id is empty")
	}
}

func TestGRPCParseDocumentWait(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		f := newFixture()
		conn := startGRPC(t, f)
		out, err := invoke(context.Background(), conn, "ParseDocument", map[string]any{"url": "https://example.com/a.pdf", "wait": true})
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		if got := out.GetFields()["status"].GetStringValue(); got != "COMPLETED" {
			t.Errorf("status = %q, want COMPLETED", got)
		}
		data := out.GetFields()["data"].GetStructValue()
		glucose := data.GetFields()["test_result"].GetStructValue().GetFields()["glucose"].GetStructValue()
		if got := glucose.GetFields()["value"].GetStringValue(); got != "95" {
			t.Errorf("glucose = %q, want 95", got)
		}
		if len(f.queue.jobs) != 0 {
			t.Errorf("jobs = %d, want none", len(f.queue.jobs))
		}
	})

	t.Run("failed", func(t *testing.T) {
		f := newFixture()
		f.store.runErr = provider.NewError("stubvision", "infer", provider.ErrAuth, errors.New("401"))
		conn := startGRPC(t, f)
		out, err := invoke(context.Background(), conn, "ParseDocument", map[string]any{"url": "https://example.com/a.pdf", "wait": true})
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		if got := out.GetFields()["status"].GetStringValue(); got != "ERROR" {
			t.Errorf("status = %q, want ERROR", got)
		}
		if got := out.GetFields()["error_message"].GetStringValue(); got != "authentication failed with provider" {
			t.Errorf("error_message = %q", got)
		}
	})

	t.Run("server-local path", func(t *testing.T) {
		f := newFixture()
		conn := startGRPC(t, f)
		for _, wait := range []bool{false, true} {
			_, err := invoke(context.Background(), conn, "ParseDocument", map[string]any{"url": "/etc/private/checkup.pdf", "wait": wait})
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("ParseDocument(wait=%v) code = %v, want InvalidArgument", wait, status.Code(err))
			}
		}
		if len(f.store.recs) != 0 || len(f.queue.jobs) != 0 {
			t.Errorf("records = %d, jobs = %d, want none", len(f.store.recs), len(f.queue.jobs))
		}
	})

	t.Run("invalid selection", func(t *testing.T) {
		f := newFixture()
		conn := startGRPC(t, f)
		_, err := invoke(context.Background(), conn, "ParseDocument", map[string]any{"url": "https://example.com/a.pdf", "visionProvider": "nope", "wait": true})
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("ParseDocument() code = %v, want InvalidArgument", status.Code(err))
		}
		if len(f.store.recs) != 0 {
			t.Errorf("records = %d, want none", len(f.store.recs))
		}
	})
}

func TestGRPCHealth(t *testing.T) {
	conn := startGRPC(t, newFixture())
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthDataServiceName})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check() = %v, want SERVING", resp.GetStatus())
	}
}
