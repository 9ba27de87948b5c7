// Package client implements the joining side of the arena protocol.
//
// A Session reacts to server messages through the same dispatch table the
// server uses, calling Hooks so a front end can render selection screens and
// gameplay. The Avatar interface stands in for the engine-controlled
// character; Puppet is the headless implementation used by `arena join`.
//
// Lifecycle, as seen from the client:
//
//	H  -> selecting   (CharacterSelection; auto-select if configured)
//	S  -> playing     (EnterGameplay; report current position)
//	P                 (Spawn; Avatar.Place)
//	E                 (SelectionFailed; still selecting)
//	B  -> verified    (PositionVerified; report lives; schedule next report)
//	M                 (Flagged)
package client
