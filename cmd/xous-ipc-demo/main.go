// Command xous-ipc-demo exercises a Kernel end to end: it spawns two
// simulated processes, has one register a server and the other connect to
// it, drives each message variant across the connection (a fire-and-forget
// Scalar, a BlockingScalar round trip, and a Move transfer), asks the
// built-in ticktimer server for its protocol version over the wire, and
// prints the metrics snapshot at the end.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/betrusted-io/xous-kernel-ipc"
	"github.com/betrusted-io/xous-kernel-ipc/internal/logging"
	"github.com/betrusted-io/xous-kernel-ipc/internal/ticktimer"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: level})

	k, err := xous.NewKernel(xous.KernelConfig{Logger: logger})
	if err != nil {
		log.Fatalf("NewKernel: %v", err)
	}
	defer k.Close()

	server := k.SpawnProcess()
	client := k.SpawnProcess()

	sid, err := k.CreateServer(server)
	if err != nil {
		log.Fatalf("CreateServer: %v", err)
	}
	fmt.Printf("server process %d registered %x\n", server, sid)

	const serverTID = xous.TID(1)
	done := make(chan struct{})

	go runServer(k, server, serverTID, sid, done)

	runClient(k, client, sid)

	<-done

	reply, err := k.Send(client, 1, k.TicktimerServer(), xous.Message{
		Kind: xous.KindBlockingScalar,
		ID:   uint32(ticktimer.OpGetVersion),
	})
	if err != nil {
		log.Fatalf("GetVersion: %v", err)
	}
	fmt.Printf("ticktimer protocol version %d\n", reply.Args[0])

	snap := k.Metrics().Snapshot()
	fmt.Printf("\n--- metrics ---\n")
	fmt.Printf("sends=%d receives=%d returns=%d bytes_moved=%d\n", snap.SendOps, snap.ReceiveOps, snap.ReturnOps, snap.BytesMoved)
	fmt.Printf("p50=%dns p99=%dns\n", snap.LatencyP50Ns, snap.LatencyP99Ns)
}

func runServer(k *xous.Kernel, pid xous.PID, tid xous.TID, sid xous.ServerID, done chan<- struct{}) {
	defer close(done)

	for i := 0; i < 3; i++ {
		env, err := k.Receive(pid, tid, sid)
		if err != nil {
			fmt.Printf("server: Receive error: %v\n", err)
			return
		}

		switch env.Message.Kind {
		case xous.KindScalar:
			fmt.Printf("server: got Scalar id=%d args=%v\n", env.Message.ID, env.Message.Args)
		case xous.KindBlockingScalar:
			fmt.Printf("server: got BlockingScalar id=%d args=%v, replying\n", env.Message.ID, env.Message.Args)
			reply := [4]uint32{env.Message.Args[0] * 2, 0, 0, 0}
			if err := k.ReturnScalar(env.Sender, reply); err != nil {
				fmt.Printf("server: ReturnScalar error: %v\n", err)
			}
		case xous.KindMove:
			fmt.Printf("server: got Move of %d bytes at addr=0x%x\n", env.Message.Mem.Len, env.Message.Mem.Addr)
		}
	}
}

func runClient(k *xous.Kernel, pid xous.PID, sid xous.ServerID) {
	const clientTID = xous.TID(1)

	if _, err := k.Send(pid, clientTID, sid, xous.Message{Kind: xous.KindScalar, ID: 1, Args: [4]uint32{42, 0, 0, 0}}); err != nil {
		fmt.Printf("client: Scalar send error: %v\n", err)
	}

	reply, err := k.Send(pid, clientTID, sid, xous.Message{Kind: xous.KindBlockingScalar, ID: 2, Args: [4]uint32{21, 0, 0, 0}})
	if err != nil {
		fmt.Printf("client: BlockingScalar send error: %v\n", err)
	} else {
		fmt.Printf("client: got reply args=%v\n", reply.Args)
	}

	if _, err := k.Send(pid, clientTID, sid, xous.Message{Kind: xous.KindMove, ID: 3, Mem: xous.MemoryRange{Addr: 0x1000, Len: 4096}}); err != nil {
		fmt.Printf("client: Move send error: %v\n", err)
	}

	time.Sleep(10 * time.Millisecond)
}
