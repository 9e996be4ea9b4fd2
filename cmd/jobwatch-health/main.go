package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/jobwatch/internal/server"
)

func main() {
	addr := flag.String("addr", os.Getenv("HEALTH_ADDR"), "jobwatchd gRPC address")
	timeout := flag.Duration("timeout", 2*time.Second, "probe timeout")
	sessions := flag.Bool("sessions", false, "also list the latest state of every session")
	flag.Parse()

	if *addr == "" {
		log.Println("ERROR: -addr or HEALTH_ADDR is required")
		log.Println("  example: jobwatch-health -addr localhost:8081")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dialing %s: %v", *addr, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: closing connection: %v", err)
		}
	}()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: server.WatchServiceName})
	if err != nil {
		log.Fatalf("jobwatchd health: FAIL (%v)", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("jobwatchd health: %s", resp.GetStatus())
	}
	log.Println("jobwatchd health: OK")

	if !*sessions {
		return
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+server.WatchServiceName+"/ListSessions", &structpb.Struct{}, out); err != nil {
		log.Fatalf("listing sessions: %v", err)
	}
	list := out.GetFields()["sessions"].GetListValue().GetValues()
	log.Printf("sessions: %d", len(list))
	for _, v := range list {
		f := v.GetStructValue().GetFields()
		log.Printf("- [%s] %s %s %s",
			f["session_id"].GetStringValue(),
			f["source"].GetStringValue(),
			f["event"].GetStringValue(),
			f["task_id"].GetStringValue(),
		)
	}
}
