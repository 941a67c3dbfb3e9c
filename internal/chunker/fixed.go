package chunker

// Fixed cuts text into consecutive windows of at most target runes without looking for
// boundaries, then applies overlap. It is the fallback chunker and accepts any limits:
// a non-positive target yields one piece and an overlap outside [0, target) is ignored.
func Fixed(text string, target, overlap int) []Piece {
	if target <= 0 {
		target = len(text) + 1
	}
	if overlap < 0 || overlap >= target {
		overlap = 0
	}
	var units []unit
	pos := 0
	for {
		rest, ok := trim(text, span{pos, len(text)})
		if !ok {
			break
		}
		end := advance(text, rest.start, target)
		if piece, ok := trim(text, span{rest.start, end}); ok {
			units = append(units, unit{span: piece})
		}
		pos = end
	}
	return assemble(text, units, overlap)
}
