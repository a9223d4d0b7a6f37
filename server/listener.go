package server

import (
	"net"
	"time"

	"github.com/bidscreen/bidscreen-server/metrics"
)

// tcpKeepAliveListener is copied from the implementation of
// net/http.Server.ListenAndServe(), so that we can reuse it in our
// custom Listen() implementations.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// monitorableListener feeds the connection metrics with every accepted and
// closed connection.
type monitorableListener struct {
	net.Listener
	metrics metrics.MetricsEngine
}

func (l *monitorableListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		l.metrics.RecordConnectionAccept(false)
		return conn, err
	}
	l.metrics.RecordConnectionAccept(true)
	return &monitorableConnection{
		conn,
		l.metrics,
	}, nil
}

type monitorableConnection struct {
	net.Conn
	metrics metrics.MetricsEngine
}

func (l *monitorableConnection) Close() error {
	err := l.Conn.Close()
	l.metrics.RecordConnectionClose(err == nil)
	return err
}
