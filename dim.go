package gokern

import (
	"fmt"
)

// Dim3 represents 3D extents and coordinates for grid and block
// configurations. As an extent every component must be at least 1; as a
// coordinate every component is 0-indexed and below the matching extent.
type Dim3 struct {
	X, Y, Z int
}

// Dim1 returns a one dimensional extent.
func Dim1(x int) Dim3 {
	return Dim3{X: x, Y: 1, Z: 1}
}

// Dim2 returns a two dimensional extent.
func Dim2(x, y int) Dim3 {
	return Dim3{X: x, Y: y, Z: 1}
}

// NewDim3 returns a three dimensional extent.
func NewDim3(x, y, z int) Dim3 {
	return Dim3{X: x, Y: y, Z: z}
}

// Size returns the total number of elements
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// Mul returns the component-wise product of two extents.
func (d Dim3) Mul(o Dim3) Dim3 {
	return Dim3{X: d.X * o.X, Y: d.Y * o.Y, Z: d.Z * o.Z}
}

// Linear converts the coordinate c to its row-major linear index within
// the extent d. X is the fastest varying dimension.
func (d Dim3) Linear(c Dim3) int {
	return c.X + d.X*(c.Y+d.Y*c.Z)
}

// Delinear converts a linear index to 3D coordinates within the extent d.
func (d Dim3) Delinear(linear int) Dim3 {
	plane := d.X * d.Y
	z := linear / plane
	y := (linear % plane) / d.X
	x := linear % d.X
	return Dim3{X: x, Y: y, Z: z}
}

// Contains reports whether c is a valid coordinate within the extent d.
func (d Dim3) Contains(c Dim3) bool {
	return c.X >= 0 && c.Y >= 0 && c.Z >= 0 &&
		c.X < d.X && c.Y < d.Y && c.Z < d.Z
}

// Fits reports whether every component of d is at most the matching
// component of limit.
func (d Dim3) Fits(limit Dim3) bool {
	return d.X <= limit.X && d.Y <= limit.Y && d.Z <= limit.Z
}

func (d Dim3) positive() bool {
	return d.X >= 1 && d.Y >= 1 && d.Z >= 1
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", d.X, d.Y, d.Z)
}

// Level selects a layer of the execution hierarchy.
type Level int

const (
	// Grid addresses blocks within the grid.
	Grid Level = iota
	// Block addresses units within a block.
	Block
	// Global addresses units within the whole grid.
	Global
)

func (l Level) String() string {
	switch l {
	case Grid:
		return "Grid"
	case Block:
		return "Block"
	case Global:
		return "Global"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// WorkDiv describes the work division of one launch: a grid of blocks,
// each block made of execution units.
type WorkDiv struct {
	Grid  Dim3 // Blocks in the grid
	Block Dim3 // Units in each block
}

// NewWorkDiv returns the work division for the given grid and block extents.
func NewWorkDiv(grid, block Dim3) WorkDiv {
	return WorkDiv{Grid: grid, Block: block}
}

// GridSize returns the number of blocks in the grid.
func (wd WorkDiv) GridSize() int {
	return wd.Grid.Size()
}

// BlockSize returns the number of units in one block.
func (wd WorkDiv) BlockSize() int {
	return wd.Block.Size()
}

// Extent returns the per-dimension extent of the given level.
func (wd WorkDiv) Extent(l Level) Dim3 {
	switch l {
	case Grid:
		return wd.Grid
	case Block:
		return wd.Block
	case Global:
		return wd.Grid.Mul(wd.Block)
	default:
		panic(fmt.Sprintf("gokern: invalid level %d", int(l)))
	}
}

// Size returns the linearized extent of the given level.
func (wd WorkDiv) Size(l Level) int {
	return wd.Extent(l).Size()
}

// Validate checks the work division against the limits of a device.
func (wd WorkDiv) Validate(props DeviceProps) error {
	if !wd.Grid.positive() {
		return NewInvalidArgError("WorkDiv", fmt.Sprintf("grid extent %v must be at least 1 in every dimension", wd.Grid))
	}
	if !wd.Block.positive() {
		return NewInvalidArgError("WorkDiv", fmt.Sprintf("block extent %v must be at least 1 in every dimension", wd.Block))
	}
	if !wd.Block.Fits(props.MaxBlockExtent) {
		return NewInvalidArgError("WorkDiv", fmt.Sprintf("block extent %v exceeds device maximum %v", wd.Block, props.MaxBlockExtent))
	}
	if n := wd.BlockSize(); n > props.MaxUnitsPerBlock {
		return NewInvalidArgError("WorkDiv", fmt.Sprintf("%d units per block exceeds device maximum %d", n, props.MaxUnitsPerBlock))
	}
	if !wd.Grid.Fits(props.MaxGridExtent) {
		return NewInvalidArgError("WorkDiv", fmt.Sprintf("grid extent %v exceeds device maximum %v", wd.Grid, props.MaxGridExtent))
	}
	return nil
}

func (wd WorkDiv) String() string {
	return fmt.Sprintf("grid=%v block=%v", wd.Grid, wd.Block)
}
