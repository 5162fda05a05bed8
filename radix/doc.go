// Package radix implements an in-memory radix tree mapping byte strings (or fixed-width
// integers, see IntTree) to 64-bit values.
//
// Nodes are compact byte records of 16 to 128 bytes allocated from a nodepool on top of
// a buddy allocator. Two node formats exist:
//
//   - scan nodes hold a prefix of up to MaxPrefix bytes, a sorted array of up to
//     MaxScanBranches branch bytes and the matching child references;
//   - mask nodes replace the branch array with a 256-bit occupancy bitmap once a
//     prefix-free node outgrows the scan format.
//
// Child references and values are stored as their low 32 bits. The high 32 bits are
// taken from the address of the owning node; the few that differ live in a pointer-prefix
// node attached to the owner through the tree registry.
//
// Every mutation is staged and either completes or leaves the tree unchanged.
//
// Build with the radixcheck tag to verify the whole tree after every mutation.
package radix
