package sync

// Chunk splits ids into consecutive batches of at most size elements.
// Every id appears in exactly one batch, in its original position.
// A non-positive size yields a single batch.
func Chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(ids)
	}

	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end:end])
	}
	return batches
}
