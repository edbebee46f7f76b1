package ai

import (
	"fmt"
	"os"
	"sync"

	"detectview/internal/logger"

	"gocv.io/x/gocv"
)

// ssdNet is a lazily loaded SSD network. Each row of its output is
// [batch_id, class_id, confidence, x1, y1, x2, y2] with corners in [0, 1].
type ssdNet struct {
	name       string
	modelPath  string
	configPath string
	logger     *logger.Logger

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

type ssdRow struct {
	classID    int
	confidence float32
	x1, y1     float32
	x2, y2     float32
}

// loadLocked reads the network on first use. Caller holds n.mu.
func (n *ssdNet) loadLocked() error {
	if n.loaded {
		return nil
	}

	if _, err := os.Stat(n.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", n.modelPath)
	}
	if _, err := os.Stat(n.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", n.configPath)
	}

	net := gocv.ReadNet(n.modelPath, n.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load %s network", n.name)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target for %s network", n.name)
	}

	n.net = net
	n.loaded = true
	n.logger.Info("%s network initialized successfully", n.name)
	return nil
}

// forward runs blob through the network and returns the rows above threshold, in output order.
func (n *ssdNet) forward(blob gocv.Mat, threshold float32) ([]ssdRow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.loadLocked(); err != nil {
		return nil, err
	}

	n.net.SetInput(blob, "")
	output := n.net.Forward("")
	defer output.Close()

	reshaped := output.Reshape(1, output.Total()/7)
	defer reshaped.Close()

	var rows []ssdRow
	for i := 0; i < reshaped.Rows(); i++ {
		confidence := reshaped.GetFloatAt(i, 2)
		if confidence <= threshold {
			continue
		}
		rows = append(rows, ssdRow{
			classID:    int(reshaped.GetFloatAt(i, 1)),
			confidence: confidence,
			x1:         clampUnit(reshaped.GetFloatAt(i, 3)),
			y1:         clampUnit(reshaped.GetFloatAt(i, 4)),
			x2:         clampUnit(reshaped.GetFloatAt(i, 5)),
			y2:         clampUnit(reshaped.GetFloatAt(i, 6)),
		})
	}
	return rows, nil
}

func (n *ssdNet) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.loaded {
		return nil
	}
	n.loaded = false
	return n.net.Close()
}

// SSD corners can land slightly outside the unit square.
func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
