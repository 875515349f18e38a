package light

// TileSize is the width and height in pixels of each screen-space tile of the
// tiled light grid. Every tile holds the indices of the point lights whose
// bounding sphere overlaps the tile's view-frustum slice, so the shading pass
// only evaluates lights relevant to the pixel's tile.
const TileSize = 32

// TileCounts computes the number of tiles in each dimension for a given screen
// resolution and the configured TileSize.
//
// Parameters:
//   - screenWidth: screen width in pixels
//   - screenHeight: screen height in pixels
//
// Returns:
//   - tileCountX: number of tile columns
//   - tileCountY: number of tile rows
func TileCounts(screenWidth, screenHeight int) (tileCountX, tileCountY int) {
	tileCountX = (screenWidth + TileSize - 1) / TileSize
	tileCountY = (screenHeight + TileSize - 1) / TileSize
	return
}
