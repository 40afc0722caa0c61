package zenify

// Disposable is implemented by bound instances that hold resources.
// A scope closes a Disposable binding when the binding is replaced,
// deleted, or the scope itself is disposed.
//
// Example:
//
//	type ConnectionPool struct {
//	    db *sql.DB
//	}
//
//	func (p *ConnectionPool) Close() error {
//	    return p.db.Close()
//	}
type Disposable interface {
	Close() error
}
