package tileindex

// 2D Morton (Z-order) bit interleaving over 64 bits. The rank of a cell is
// the interleave of its grid column (even bits) and row (odd bits), so
// sorting by rank clusters spatially adjacent cells.

// part1by1 spreads the lower 32 bits of n over the even bit positions.
func part1by1(n uint64) uint64 {
	n &= 0x00000000ffffffff
	n = (n | (n << 16)) & 0x0000ffff0000ffff
	n = (n | (n << 8)) & 0x00ff00ff00ff00ff
	n = (n | (n << 4)) & 0x0f0f0f0f0f0f0f0f
	n = (n | (n << 2)) & 0x3333333333333333
	n = (n | (n << 1)) & 0x5555555555555555
	return n
}

// unpart1by1 compacts the even bit positions of n back into 32 bits.
func unpart1by1(n uint64) uint64 {
	n &= 0x5555555555555555
	n = (n ^ (n >> 1)) & 0x3333333333333333
	n = (n ^ (n >> 2)) & 0x0f0f0f0f0f0f0f0f
	n = (n ^ (n >> 4)) & 0x00ff00ff00ff00ff
	n = (n ^ (n >> 8)) & 0x0000ffff0000ffff
	n = (n ^ (n >> 16)) & 0x00000000ffffffff
	return n
}

// Interleave computes the Morton rank of a (column, row) pair.
func Interleave(col, row uint32) uint64 {
	return part1by1(uint64(col)) | part1by1(uint64(row))<<1
}

// Deinterleave recovers the (column, row) pair from a Morton rank.
func Deinterleave(rank uint64) (col, row uint32) {
	return uint32(unpart1by1(rank)), uint32(unpart1by1(rank >> 1))
}
