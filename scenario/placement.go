package scenario

import (
	"fmt"
	"math"

	"github.com/saintparish4/wifisim/nodes"
)

// GenerateLine places count stations named prefix0..prefixN-1 along the x
// axis, spacing metres apart, starting at origin.
func GenerateLine(prefix string, count int, origin nodes.Vec3, spacing float64) []NodeConfig {
	out := make([]NodeConfig, count)
	for i := 0; i < count; i++ {
		out[i] = NodeConfig{
			Name:     fmt.Sprintf("%s%d", prefix, i),
			Kind:     string(nodes.KindStation),
			Position: []float64{origin.X + float64(i)*spacing, origin.Y, origin.Z},
		}
	}
	return out
}

// GenerateGrid places rows*cols stations on a square grid in the z=height
// plane, row by row.
func GenerateGrid(prefix string, rows, cols int, spacing, height float64) []NodeConfig {
	out := make([]NodeConfig, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, NodeConfig{
				Name:     fmt.Sprintf("%s%d", prefix, r*cols+c),
				Kind:     string(nodes.KindStation),
				Position: []float64{float64(c) * spacing, float64(r) * spacing, height},
			})
		}
	}
	return out
}

// GenerateRing places count stations evenly on a circle of the given radius
// around center, in the center's z plane.
func GenerateRing(prefix string, count int, center nodes.Vec3, radius float64) []NodeConfig {
	out := make([]NodeConfig, count)
	for i := 0; i < count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(count)
		out[i] = NodeConfig{
			Name: fmt.Sprintf("%s%d", prefix, i),
			Kind: string(nodes.KindStation),
			Position: []float64{
				center.X + radius*math.Cos(angle),
				center.Y + radius*math.Sin(angle),
				center.Z,
			},
		}
	}
	return out
}

// UplinkFlows creates one flow per station towards dest, all at the same
// rate and on the same schedule.
func UplinkFlows(stations []NodeConfig, dest string, rate Rate, start, stop float64) []FlowConfig {
	flows := make([]FlowConfig, 0, len(stations))
	for _, s := range stations {
		flows = append(flows, FlowConfig{
			Source:     s.Name,
			Dest:       dest,
			Rate:       rate,
			PacketSize: DefaultPacketSize,
			Start:      start,
			Stop:       stop,
		})
	}
	return flows
}
