package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/scenario"
)

func main() {
	interactive := flag.Bool("interactive", false, "wait for Enter between sections")
	flag.Parse()

	if err := RunDemo(*interactive); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}

// RunDemo walks through the two-UAV run section by section, showing the
// numbers the simulation produces as it goes.
func RunDemo(interactive bool) error {
	pause := func() {
		if interactive {
			fmt.Print("Press Enter to continue...")
			fmt.Scanln()
		}
		fmt.Println()
	}

	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║        Wi-Fi 6 DEMO: two UAVs uploading to one AP        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Section 1: Setup
	fmt.Println("📡 SECTION 1: Building the network")
	fmt.Println("═══════════════════════════════════════════════════════════")

	cfg := scenario.TwoUAV()
	cfg.Outages = []scenario.OutageConfig{{Node: "uav0", At: 5, Duration: 1}}

	sim, err := scenario.Build(cfg, scenario.Options{Logger: logging.Noop()})
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s, %d MHz channel, data mode %s\n", cfg.WiFi.Standard, cfg.WiFi.ChannelWidthMHz, cfg.WiFi.DataMode)
	for _, n := range sim.Nodes() {
		dev := n.Device()
		fmt.Printf("  %-5s %-8s %-13s at %v\n", n.Name, n.Kind, dev.Address, n.Position)
	}
	for _, f := range cfg.Flows {
		fmt.Printf("  flow %s → %s at %s, %d-byte packets, %.0fs-%.0fs\n",
			f.Source, f.Dest, f.Rate, f.PacketSize, f.Start, f.Stop)
	}
	fmt.Println()
	pause()

	// Section 2: Traffic
	fmt.Println("📨 SECTION 2: Running the first 5 seconds")
	fmt.Println("═══════════════════════════════════════════════════════════")

	sim.Advance(5)
	printState(sim.Snapshot())
	pause()

	// Section 3: Outage
	fmt.Println("💥 SECTION 3: uav0 radio off for 1 second")
	fmt.Println("═══════════════════════════════════════════════════════════")

	sim.Advance(6)
	st := sim.Snapshot()
	printState(st)
	if m, ok := sim.MAC("uav0"); ok {
		fmt.Printf("uav0 queued up to %d frames while its radio was off\n", m.Stats().MaxQueue)
	}
	for _, rec := range sim.Injector().History() {
		fmt.Printf("  t=%.3fs %-16s %s\n", rec.Time, rec.Type, rec.Target)
	}
	fmt.Println()
	pause()

	// Section 4: Results
	fmt.Println("📈 FINAL SUMMARY")
	fmt.Println("═══════════════════════════════════════════════════════════")

	r, err := sim.Run(context.Background())
	if err != nil {
		return err
	}
	if err := r.WriteSummary(os.Stdout); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("💡 uav1 sits about 19 m from the AP. Its signal is below the")
	fmt.Println("   HeMcs5 threshold, so every frame it sends is lost.")
	return nil
}

func printState(st scenario.State) {
	fmt.Printf("t=%.2fs  events=%d  pending=%d\n", st.Time, st.Events, st.Pending)
	for _, d := range st.Devices {
		rssi := "    n/a"
		if d.RSSI != nil {
			rssi = fmt.Sprintf("%7.2f", *d.RSSI)
		}
		fmt.Printf("  %-5s radio=%-3s mac=%-8s queue=%-4d sent=%-6d rssi=%s dBm\n",
			d.Name, d.Radio, d.MAC, d.Queue, d.Sent, rssi)
	}
	for _, f := range st.Flows {
		fmt.Printf("  flow %d %s → %s: tx=%d rx=%d throughput=%.3f Mbps qos=%.3f\n",
			f.ID, f.Source, f.Dest, f.TxPackets, f.RxPackets, f.ThroughputMbps, f.QoS)
	}
	fmt.Println()
}
