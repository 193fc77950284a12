package mem

import (
	"math"

	"github.com/paulmach/orb"
)

// 文档注释：KD-Tree 最近邻（单位球面三维坐标）
// 背景：按经纬度二维分割时，经度方向的剪枝下界随纬度变化，高纬与跨日界线处会误剪；
// 转为单位球面上的 (x,y,z) 后弦长与大圆距离单调一致，按坐标轴剪枝是精确的。
// 约束：中位数分割，三轴交替；只读，构建后不修改；等距时按 object_id 字典序取小。
type kdNode struct {
	e  entry
	ax int // 0:x 1:y 2:z
	l  *kdNode
	r  *kdNode
}

type entry struct {
	idx int // 在所属时间桶中的下标
	id  string
	v   [3]float64
}

func toUnit(p orb.Point) [3]float64 {
	lat := p.Lat() * math.Pi / 180
	lon := p.Lon() * math.Pi / 180
	return [3]float64{math.Cos(lat) * math.Cos(lon), math.Cos(lat) * math.Sin(lon), math.Sin(lat)}
}

func buildKD(es []entry, depth int) *kdNode {
	if len(es) == 0 {
		return nil
	}
	ax := depth % 3
	mid := len(es) / 2
	selectNth(es, mid, ax)
	n := &kdNode{e: es[mid], ax: ax}
	n.l = buildKD(es[:mid], depth+1)
	n.r = buildKD(es[mid+1:], depth+1)
	return n
}

// 原地 nth 元素选择
func selectNth(a []entry, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []entry, lo, hi, pivot, ax int) int {
	pv := a[pivot].v[ax]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if a[j].v[ax] < pv {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func chord2(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// nearest：返回最近条目；树为空时 ok=false
func nearest(root *kdNode, pt orb.Point) (entry, bool) {
	if root == nil {
		return entry{}, false
	}
	q := toUnit(pt)
	var best entry
	bestD := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		d := chord2(q, n.e.v)
		if d < bestD || (d == bestD && n.e.id < best.id) {
			bestD = d
			best = n.e
		}
		diff := q[n.ax] - n.e.v[n.ax]
		first, second := n.l, n.r
		if diff > 0 {
			first, second = n.r, n.l
		}
		dfs(first)
		// 分割面距离不超过当前最优时才需遍历另一侧；取等号以便等距候选参与字典序比较
		if diff*diff <= bestD {
			dfs(second)
		}
	}
	dfs(root)
	return best, true
}
