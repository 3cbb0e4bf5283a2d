package pointcloud

import (
	"bufio"
	"fmt"
	"io"
)

// WritePLY writes the cloud as an ASCII PLY file. Colors are emitted as
// uchar RGBA properties when present.
func (cloud *PointCloud) WritePLY(w io.Writer) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintf(buf, "ply\n")
	fmt.Fprintf(buf, "format ascii 1.0\n")
	fmt.Fprintf(buf, "element vertex %d\n", cloud.Size())
	fmt.Fprintf(buf, "property float x\n")
	fmt.Fprintf(buf, "property float y\n")
	fmt.Fprintf(buf, "property float z\n")
	if cloud.HasColor() {
		fmt.Fprintf(buf, "property uchar red\n")
		fmt.Fprintf(buf, "property uchar green\n")
		fmt.Fprintf(buf, "property uchar blue\n")
		fmt.Fprintf(buf, "property uchar alpha\n")
	}
	fmt.Fprintf(buf, "end_header\n")
	for i, pt := range cloud.points {
		if cloud.HasColor() {
			c := cloud.colors[i]
			fmt.Fprintf(buf, "%v %v %v %d %d %d %d\n", pt.X, pt.Y, pt.Z, c.R, c.G, c.B, c.A)
		} else {
			fmt.Fprintf(buf, "%v %v %v\n", pt.X, pt.Y, pt.Z)
		}
	}
	return buf.Flush()
}
