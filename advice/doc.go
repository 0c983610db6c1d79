// Package advice splices the bytecode of a donor class's entry and exit
// advice methods into target methods.
//
// A donor declares at most one static method annotated with the entry
// marker and at most one annotated with the exit marker:
//
//	@OnMethodEnter static int enter(@Argument(0) String name) { ... }
//	@OnMethodExit(onException = false) static void exit(@Enter int token) { ... }
//
// Resolve validates the donor once. The resulting Advice is immutable and
// may weave any number of methods concurrently: every splice re-decodes the
// donor bytes, so no labels or other parse state are shared between splice
// sites.
//
// Local slot layout of a woven method with declared size S (receiver plus
// parameters), entry footprint F and return size R:
//
//	[0, S)         receiver and parameters, unchanged
//	[S, S+F)       value returned by the entry advice
//	[S+F, ...)     the method's own locals, shifted up by F
//	S+F            the value about to be returned, at every exit point
//
// Unbound donor locals are rebased past S (entry) or S+R+F (exit).
package advice
