package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/document"
	"github.com/joseph-ayodele/checkup-extractor/internal/entity"
	"github.com/joseph-ayodele/checkup-extractor/internal/pipeline"
)

const HealthDataServiceName = "checkup.v1.HealthDataService"

// HealthDataServer is the gRPC contract. Messages are google.protobuf.Struct
// carrying the same JSON shapes as the HTTP API.
type HealthDataServer interface {
	GetRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ParseDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var HealthDataServiceDesc = grpc.ServiceDesc{
	ServiceName: HealthDataServiceName,
	HandlerType: (*HealthDataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRecord", Handler: getRecordHandler},
		{MethodName: "ParseDocument", Handler: parseDocumentHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterHealthDataServer(s grpc.ServiceRegistrar, srv HealthDataServer) {
	s.RegisterService(&HealthDataServiceDesc, srv)
}

func getRecordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HealthDataServer).GetRecord(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + HealthDataServiceName + "/GetRecord"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HealthDataServer).GetRecord(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func parseDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HealthDataServer).ParseDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + HealthDataServiceName + "/ParseDocument"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HealthDataServer).ParseDocument(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SyncRunner is satisfied by *pipeline.Processor.
type SyncRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*entity.HealthRecord, pipeline.Output, error)
}

// HealthDataService implements HealthDataServer.
type HealthDataService struct {
	submitter *Submitter
	runner    SyncRunner
	records   RecordReader
	logger    *slog.Logger
}

var _ HealthDataServer = (*HealthDataService)(nil)

func NewHealthDataService(submitter *Submitter, runner SyncRunner, records RecordReader, logger *slog.Logger) *HealthDataService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthDataService{submitter: submitter, runner: runner, records: records, logger: logger}
}

// GetRecord takes {"id": "<uuid>"} and returns the stored record.
func (s *HealthDataService) GetRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuid.Parse(stringField(in, "id"))
	if err != nil {
		return nil, common.InvalidArgumentError("id must be a uuid")
	}
	rec, err := s.records.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NotFoundError("health record not found")
	}
	if err != nil {
		s.logger.Error("grpc.get_record.failed", "record_id", id, "err", err)
		return nil, common.InternalError("failed to load record")
	}
	return toStruct(rec)
}

// ParseDocument takes the HTTP submit fields plus optional "fileName" and
// base64 "content". By default the parse is queued and {id, status} is
// returned; with "wait": true it runs inline and the finished record is
// returned.
func (s *HealthDataService) ParseDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if common.RequestIDFromContext(ctx) == "" {
		ctx = common.WithRequestID(ctx, uuid.NewString())
	}
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}

	if !boolField(in, "wait") {
		rec, err := s.submitter.Submit(ctx, req)
		if err != nil {
			return nil, s.statusFor(err)
		}
		return toStruct(submitResponse{ID: rec.ID.String(), Status: rec.Status})
	}

	req, err = s.submitter.Prepare(req)
	if err != nil {
		return nil, common.InvalidArgumentError(err.Error())
	}
	rec, _, err := s.runner.Run(ctx, req)
	if rec == nil {
		s.logger.Error("grpc.parse.start_failed", "req_id", common.RequestIDFromContext(ctx), "err", err)
		return nil, common.InternalError("failed to start record")
	}
	// the record holds the outcome either way
	stored, getErr := s.records.Get(context.WithoutCancel(ctx), rec.ID)
	if getErr != nil {
		return nil, common.InternalErrorf("failed to load record %s", rec.ID)
	}
	if err != nil {
		s.logger.Warn("grpc.parse.failed", "record_id", rec.ID, "err", err)
	}
	return toStruct(stored)
}

func (s *HealthDataService) statusFor(err error) error {
	code := common.CodeOf(err)
	if code == codes.InvalidArgument {
		return status.Error(code, err.Error())
	}
	s.logger.Error("grpc.submit.failed", "code", code.String(), "err", err)
	return status.Error(code, "failed to submit document")
}

func requestFromStruct(in *structpb.Struct) (pipeline.Request, error) {
	req := pipeline.Request{
		Ref:            stringField(in, "url"),
		VisionProvider: stringField(in, "visionProvider"),
		VisionModel:    stringField(in, "visionModel"),
		VisionAPIKey:   stringField(in, "visionApiKey"),
		ParserProvider: stringField(in, "parserProvider"),
		ParserModel:    stringField(in, "parserModel"),
		ParserAPIKey:   stringField(in, "parserApiKey"),
		OCRProvider:    stringField(in, "ocrProvider"),
	}
	content := stringField(in, "content")
	if content == "" {
		return req, nil
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return req, fmt.Errorf("content must be base64: %v", err)
	}
	name := stringField(in, "fileName")
	if name == "" {
		name = "upload"
	}
	doc, err := document.New(name, data)
	if err != nil {
		return req, err
	}
	req.Document = &doc
	return req, nil
}

func stringField(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func boolField(in *structpb.Struct, key string) bool {
	if v, ok := in.GetFields()[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

// GRPCServer hosts the health-data service and grpc.health.v1.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewGRPCServer(svc HealthDataServer, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	RegisterHealthDataServer(gs, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthDataServiceName, healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(gs)

	return &GRPCServer{server: gs, health: hs, logger: logger}
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc.listen", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Shutdown marks the server NOT_SERVING and drains in-flight calls. If ctx
// ends first the remaining calls are cut off.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
