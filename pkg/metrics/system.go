package metrics

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskStats 音频存储所在磁盘的使用情况
type DiskStats struct {
	Path         string  `json:"path"`
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usage_percent"`
}

// CollectDiskStats reads usage of the volume holding path and updates the
// free-space gauge when m is not nil.
func CollectDiskStats(path string, m *Metrics) (*DiskStats, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetStorageFree(usage.Free)
	}
	return &DiskStats{
		Path:         path,
		Total:        usage.Total,
		Used:         usage.Used,
		Free:         usage.Free,
		UsagePercent: usage.UsedPercent,
	}, nil
}
