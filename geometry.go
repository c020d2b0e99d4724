package replan

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Quat is a unit quaternion (x, y, z, w).
type Quat struct {
	X, Y, Z, W float64
}

// UnitQuat is the identity rotation.
var UnitQuat = Quat{W: 1}

// Euler angles applied as yaw * pitch * roll (extrinsic roll, pitch, yaw).
type Euler struct {
	Roll, Pitch, Yaw float64
}

// QuatFromEuler converts Euler angles to a quaternion.
func QuatFromEuler(e Euler) Quat {
	cr, sr := math.Cos(e.Roll/2), math.Sin(e.Roll/2)
	cp, sp := math.Cos(e.Pitch/2), math.Sin(e.Pitch/2)
	cy, sy := math.Cos(e.Yaw/2), math.Sin(e.Yaw/2)
	return Quat{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// Yaw returns the rotation about the world z axis.
func (q Quat) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Mul returns q * o.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Conj returns the inverse of a unit quaternion.
func (q Quat) Conj() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Normalize scales q to unit length. The zero quaternion maps to UnitQuat.
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n < 1e-12 {
		return UnitQuat
	}
	return Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Rotate applies q to v.
func (q Quat) Rotate(v r3.Vector) r3.Vector {
	u := r3.Vector{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(u.Cross(t))
}

// quatFromBasis builds a rotation whose columns are the given axes.
func quatFromBasis(x, y, z r3.Vector) Quat {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z
	tr := m00 + m11 + m22
	var q Quat
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = Quat{W: s / 4, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{W: (m21 - m12) / s, X: s / 4, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: s / 4, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: s / 4}
	}
	return q.Normalize()
}

// Pose is a rigid transform.
type Pose struct {
	Point r3.Vector `json:"point"`
	Quat  Quat      `json:"quat"`
}

// UnitPose is the identity transform.
var UnitPose = Pose{Quat: UnitQuat}

// NewPose builds a pose from a point and Euler angles.
func NewPose(point r3.Vector, e Euler) Pose {
	return Pose{Point: point, Quat: QuatFromEuler(e)}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Pose {
	return Pose{Point: r3.Vector{X: x, Y: y, Z: z}, Quat: UnitQuat}
}

// Multiply composes poses left to right: Multiply(a, b) maps b's frame into a's parent.
func Multiply(poses ...Pose) Pose {
	out := UnitPose
	for _, p := range poses {
		out = Pose{
			Point: out.Point.Add(out.Quat.Rotate(p.Point)),
			Quat:  out.Quat.Mul(p.Quat).Normalize(),
		}
	}
	return out
}

// Invert returns the inverse transform.
func Invert(p Pose) Pose {
	q := p.Quat.Conj()
	return Pose{Point: q.Rotate(p.Point).Mul(-1), Quat: q}
}

// Apply maps a point through p.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return p.Point.Add(p.Quat.Rotate(v))
}

// LookAt returns a camera pose at eye whose z axis points at target, with y pointing down.
func LookAt(eye, target r3.Vector) Pose {
	z := target.Sub(eye).Normalize()
	up := r3.Vector{Z: 1}
	x := z.Cross(up)
	if x.Norm() < 1e-9 {
		x = r3.Vector{X: 1}
	}
	x = x.Normalize()
	y := z.Cross(x)
	return Pose{Point: eye, Quat: quatFromBasis(x, y, z)}
}

// WrapAngle maps theta to [-pi, pi).
func WrapAngle(theta float64) float64 {
	return math.Mod(math.Mod(theta+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
}

// Distance is the Euclidean distance between two joint vectors.
func Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Lower r3.Vector
	Upper r3.Vector
}

// NewAABB builds a box from its center and half extents.
func NewAABB(center, half r3.Vector) AABB {
	return AABB{Lower: center.Sub(half), Upper: center.Add(half)}
}

// Center returns the box center.
func (b AABB) Center() r3.Vector {
	return b.Lower.Add(b.Upper).Mul(0.5)
}

// Extent returns the full side lengths.
func (b AABB) Extent() r3.Vector {
	return b.Upper.Sub(b.Lower)
}

// Union returns the smallest box containing b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Lower: r3.Vector{X: math.Min(b.Lower.X, o.Lower.X), Y: math.Min(b.Lower.Y, o.Lower.Y), Z: math.Min(b.Lower.Z, o.Lower.Z)},
		Upper: r3.Vector{X: math.Max(b.Upper.X, o.Upper.X), Y: math.Max(b.Upper.Y, o.Upper.Y), Z: math.Max(b.Upper.Z, o.Upper.Z)},
	}
}

// Overlaps reports whether the boxes are closer than margin.
// Touching boxes do not overlap when margin is zero.
func (b AABB) Overlaps(o AABB, margin float64) bool {
	return b.Lower.X < o.Upper.X+margin && o.Lower.X < b.Upper.X+margin &&
		b.Lower.Y < o.Upper.Y+margin && o.Lower.Y < b.Upper.Y+margin &&
		b.Lower.Z < o.Upper.Z+margin && o.Lower.Z < b.Upper.Z+margin
}

// ContainsXY reports whether o's footprint lies within b's footprint.
func (b AABB) ContainsXY(o AABB) bool {
	return b.Lower.X <= o.Lower.X && o.Upper.X <= b.Upper.X &&
		b.Lower.Y <= o.Lower.Y && o.Upper.Y <= b.Upper.Y
}

// Ray is a segment from Start to End.
type Ray struct {
	Start r3.Vector
	End   r3.Vector
}

// Hits reports whether the open segment passes through box.
// Contacts at the very end of the segment are ignored.
func (r Ray) Hits(box AABB) bool {
	const eps = 1e-6
	d := r.End.Sub(r.Start)
	tmin, tmax := 0.0, 1.0-eps
	for _, axis := range [3]struct{ o, d, lo, hi float64 }{
		{r.Start.X, d.X, box.Lower.X, box.Upper.X},
		{r.Start.Y, d.Y, box.Lower.Y, box.Upper.Y},
		{r.Start.Z, d.Z, box.Lower.Z, box.Upper.Z},
	} {
		if math.Abs(axis.d) < 1e-12 {
			if axis.o < axis.lo || axis.o > axis.hi {
				return false
			}
			continue
		}
		t1 := (axis.lo - axis.o) / axis.d
		t2 := (axis.hi - axis.o) / axis.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}

// ConvexHull returns the counter-clockwise hull of points.
func ConvexHull(points []r2.Point) []r2.Point {
	pts := append([]r2.Point(nil), points...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	if len(pts) < 3 {
		return pts
	}
	cross := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}
	hull := make([]r2.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// GrowPolygon returns the hull of points dilated by radius.
func GrowPolygon(points []r2.Point, radius float64) []r2.Point {
	if radius <= 0 {
		return ConvexHull(points)
	}
	const spokes = 16
	grown := make([]r2.Point, 0, len(points)*spokes)
	for _, p := range points {
		for i := 0; i < spokes; i++ {
			theta := 2 * math.Pi * float64(i) / spokes
			grown = append(grown, p.Add(r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}.Mul(radius)))
		}
	}
	return ConvexHull(grown)
}

// PointInPolygon reports whether p lies in the counter-clockwise convex polygon.
func PointInPolygon(p r2.Point, polygon []r2.Point) bool {
	if len(polygon) < 3 {
		return false
	}
	for i := range polygon {
		a, b := polygon[i], polygon[(i+1)%len(polygon)]
		if b.Sub(a).Cross(p.Sub(a)) < 0 {
			return false
		}
	}
	return true
}

func planar(v r3.Vector) r2.Point {
	return r2.Point{X: v.X, Y: v.Y}
}
