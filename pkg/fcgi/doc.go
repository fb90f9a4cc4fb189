// Package fcgi is a FastCGI client for the responder role.
//
// A Conn owns one stream to an application such as php-fpm. It frames each
// request into FCGI_BEGIN_REQUEST, FCGI_PARAMS and FCGI_STDIN records and
// collects FCGI_STDOUT and FCGI_STDERR until FCGI_END_REQUEST:
//
//	c, err := fcgi.Dial(ctx, "unix", "/run/php/php-fpm.sock", fcgi.WithKeepConn(true))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	resp, err := c.Execute(ctx, &fcgi.Request{
//		Params: fcgi.ParamsFrom("SCRIPT_FILENAME", "/var/www/index.php", "REQUEST_METHOD", "GET"),
//	})
//
// A Conn without keep-alive serves a single request. With keep-alive it is
// reused, one request at a time unless WithMultiplex is set.
package fcgi
