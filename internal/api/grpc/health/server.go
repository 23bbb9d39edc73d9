package health

import (
	"path/filepath"
	"strings"
	"sync"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/server-updater/internal/domain/update"
)

// Server implements the gRPC health API on top of update outcomes.
//
// Every target is published under TargetServiceName. Its project is published under
// ServiceName with the worst status of the project's targets.
type Server struct {
	// health is the stock health implementation holding the statuses.
	health *grpchealth.Server

	mu sync.Mutex
	// targets holds the latest status per project service and output.
	targets map[string]map[string]healthpb.HealthCheckResponse_ServingStatus
}

// NewServer returns a server reporting the daemon as serving.
func NewServer() *Server {
	return &Server{
		health:  grpchealth.NewServer(),
		targets: make(map[string]map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Health returns the underlying health server.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Track declares a target before its first round.
func (s *Server) Track(project, output string) {
	s.set(project, output, healthpb.HealthCheckResponse_UNKNOWN)
}

// Report publishes the outcome of the latest round for a target.
func (s *Server) Report(project, output string, outcome update.Outcome) {
	s.set(project, output, StatusOf(outcome))
}

// Shutdown marks every service as not serving and ignores later reports.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) set(project, output string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	service := ServiceName(project)

	outputs, ok := s.targets[service]
	if !ok {
		outputs = make(map[string]healthpb.HealthCheckResponse_ServingStatus)
		s.targets[service] = outputs
	}

	outputs[cleanOutput(output)] = status

	s.health.SetServingStatus(TargetServiceName(project, output), status)
	s.health.SetServingStatus(service, worst(outputs))
}

// ServiceName returns the health service name of a project.
func ServiceName(project string) string {
	return strings.ToLower(strings.TrimSpace(project))
}

// TargetServiceName returns the health service name of one target: "project/output".
func TargetServiceName(project, output string) string {
	return ServiceName(project) + "/" + cleanOutput(output)
}

// StatusOf maps an update outcome to a serving status.
func StatusOf(outcome update.Outcome) healthpb.HealthCheckResponse_ServingStatus {
	if outcome.IsError() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}

	return healthpb.HealthCheckResponse_SERVING
}

func cleanOutput(output string) string {
	return filepath.ToSlash(filepath.Clean(output))
}

// worst ranks NOT_SERVING over UNKNOWN over SERVING.
func worst(statuses map[string]healthpb.HealthCheckResponse_ServingStatus) healthpb.HealthCheckResponse_ServingStatus {
	result := healthpb.HealthCheckResponse_SERVING

	for _, status := range statuses {
		switch status {
		case healthpb.HealthCheckResponse_NOT_SERVING:
			return status
		case healthpb.HealthCheckResponse_UNKNOWN:
			result = status
		default:
		}
	}

	return result
}
