// Package surface mirrors managed class hierarchies into the native engine.
//
// A Surface is the managed-side handle to one engine surface. Resolve walks a
// class's ancestry and registers every class the engine has not seen yet,
// root first, so the engine always holds a complete parent chain. Each class
// is registered at most once per Surface and stays registered until Close,
// which releases the pinned handles and then destroys the engine surface.
//
//	s, err := surface.New(ctx, surface.Options{Engine: rt, Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	td, err := s.Resolve(surface.TypeOf(Circle{}))
package surface
